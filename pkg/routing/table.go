package routing

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SupportedTableVersions is the range of route table schema versions this
// build understands.
const SupportedTableVersions = "^1.0.0"

// RouteSpec is the guard configuration of one route prefix. Every guard
// variant (protected, complete-only, admin-only) is one of these.
type RouteSpec struct {
	Path            string `yaml:"path" json:"path"`
	RequireAuth     bool   `yaml:"require_auth" json:"require_auth"`
	RequireComplete bool   `yaml:"require_complete" json:"require_complete"`
	AdminOnly       bool   `yaml:"admin_only" json:"admin_only"`
}

type tableFile struct {
	Version string      `yaml:"version"`
	Routes  []RouteSpec `yaml:"routes"`
}

// Table maps paths to route specs by longest prefix.
type Table struct {
	version *semver.Version
	routes  []RouteSpec // sorted by descending path length
}

// ParseTable decodes and validates a YAML route table.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse route table: %w", err)
	}
	if f.Version == "" {
		return nil, errors.New("route table: version is required")
	}
	v, err := semver.NewVersion(f.Version)
	if err != nil {
		return nil, fmt.Errorf("route table version %q: %w", f.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedTableVersions)
	if err != nil {
		return nil, err
	}
	if !constraint.Check(v) {
		return nil, fmt.Errorf("route table version %s not supported (want %s)", v, SupportedTableVersions)
	}
	return NewTable(v, f.Routes)
}

// LoadTable reads a route table file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load route table: %w", err)
	}
	return ParseTable(data)
}

// NewTable validates routes and builds a table.
func NewTable(version *semver.Version, routes []RouteSpec) (*Table, error) {
	seen := make(map[string]bool, len(routes))
	out := make([]RouteSpec, 0, len(routes))
	for i, r := range routes {
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("route %d: path %q must start with /", i, r.Path)
		}
		r.Path = CleanPath(r.Path)
		if seen[r.Path] {
			return nil, fmt.Errorf("route %d: duplicate path %q", i, r.Path)
		}
		if (r.RequireComplete || r.AdminOnly) && !r.RequireAuth {
			return nil, fmt.Errorf("route %q: require_complete and admin_only imply require_auth", r.Path)
		}
		seen[r.Path] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Path) > len(out[j].Path) })
	return &Table{version: version, routes: out}, nil
}

// Version returns the table schema version.
func (t *Table) Version() *semver.Version { return t.version }

// Routes returns the routes ordered by path.
func (t *Table) Routes() []RouteSpec {
	out := append([]RouteSpec(nil), t.routes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Lookup returns the spec of the longest route prefix matching path. Paths
// that match nothing require authentication.
func (t *Table) Lookup(path string) RouteSpec {
	path = CleanPath(path)
	for _, r := range t.routes {
		if matchesPrefix(path, r.Path) {
			return r
		}
	}
	return RouteSpec{Path: path, RequireAuth: true}
}

func matchesPrefix(path, prefix string) bool {
	if prefix == "/" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// CleanPath strips the query and trailing slashes. The empty path is "/".
func CleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

const defaultTableYAML = `
version: 1.0.0
routes:
  - path: /auth
  - path: /pricing
  - path: /onboarding
    require_auth: true
  - path: /dashboard
    require_auth: true
  - path: /settings
    require_auth: true
  - path: /clarity
    require_auth: true
    require_complete: true
  - path: /feed
    require_auth: true
    require_complete: true
  - path: /recommendations
    require_auth: true
    require_complete: true
  - path: /health
    require_auth: true
    require_complete: true
  - path: /admin
    require_auth: true
    admin_only: true
`

// DefaultTable returns the built-in route table.
func DefaultTable() *Table {
	t, err := ParseTable([]byte(defaultTableYAML))
	if err != nil {
		panic(fmt.Sprintf("routing: invalid built-in route table: %v", err))
	}
	return t
}
