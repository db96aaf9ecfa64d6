package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DecisionHash is a SHA-256 over the RFC 8785 canonical JSON of the input and
// verdict. Equal hashes across consecutive navigations indicate a decision
// that did not change.
func DecisionHash(in Input, v Verdict) (string, error) {
	in.Path = CleanPath(in.Path)
	in.Snapshot = in.Snapshot.Normalize()

	raw, err := json.Marshal(struct {
		Input   Input   `json:"input"`
		Verdict Verdict `json:"verdict"`
	}{in, v})
	if err != nil {
		return "", fmt.Errorf("encode decision: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize decision: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
