package impersonation

import (
	"context"
	"net/http"
	"sync"
)

// CookieName is the browsing-session cookie holding the impersonation token.
const CookieName = "navguard-impersonation"

// Scope is the browsing-session storage holding at most one session token.
type Scope interface {
	Load(ctx context.Context) (string, bool)
	Store(ctx context.Context, token string) error
	Clear(ctx context.Context)
}

// MemoryScope is an in-process Scope.
type MemoryScope struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryScope) Load(ctx context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *MemoryScope) Store(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryScope) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
}

// CookieScope keeps the token in a cookie without Max-Age, so it ends with the
// browser session. Writes are visible to later Loads within the same request.
type CookieScope struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool

	loaded bool
	token  string
}

// NewCookieScope binds a scope to one request/response pair.
func NewCookieScope(w http.ResponseWriter, r *http.Request, secure bool) *CookieScope {
	return &CookieScope{w: w, r: r, secure: secure}
}

func (c *CookieScope) Load(ctx context.Context) (string, bool) {
	if !c.loaded {
		c.loaded = true
		if ck, err := c.r.Cookie(CookieName); err == nil {
			c.token = ck.Value
		}
	}
	return c.token, c.token != ""
}

func (c *CookieScope) Store(ctx context.Context, token string) error {
	c.loaded, c.token = true, token
	http.SetCookie(c.w, c.cookie(token, 0))
	return nil
}

// Clear expires the cookie. With no cookie present it writes nothing.
func (c *CookieScope) Clear(ctx context.Context) {
	if _, ok := c.Load(ctx); !ok {
		return
	}
	c.token = ""
	http.SetCookie(c.w, c.cookie("", -1))
}

func (c *CookieScope) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
