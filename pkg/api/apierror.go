// Package api holds the HTTP edge helpers: RFC 7807 problem responses, JSON
// encoding and per-IP rate limiting.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const problemTypeBase = "urn:navguard:problem:"

// Problem is an RFC 7807 problem document. Title is always the status text;
// Detail is the only caller-controlled text.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// TraceID echoes the X-Request-ID of the response.
	TraceID string `json:"trace_id,omitempty"`
}

// NewProblem builds the problem for status.
func NewProblem(status int, detail string) *Problem {
	return &Problem{
		Type:   problemTypeBase + strconv.Itoa(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

func (p *Problem) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

// At sets the request path the problem refers to.
func (p *Problem) At(r *http.Request) *Problem {
	if r != nil {
		p.Instance = r.URL.Path
	}
	return p
}

// Write sends p. The request id middleware must already have set
// X-Request-ID on w for the trace id to be filled in.
func (p *Problem) Write(w http.ResponseWriter) {
	p.TraceID = w.Header().Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func WriteBadRequest(w http.ResponseWriter, detail string) {
	NewProblem(http.StatusBadRequest, detail).Write(w)
}

func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "A valid session is required"
	}
	NewProblem(http.StatusUnauthorized, detail).Write(w)
}

func WriteForbidden(w http.ResponseWriter, detail string) {
	NewProblem(http.StatusForbidden, detail).Write(w)
}

// WriteConflict is used for navigations superseded by a newer one.
func WriteConflict(w http.ResponseWriter, detail string) {
	NewProblem(http.StatusConflict, detail).Write(w)
}

func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	NewProblem(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// WriteUnavailable asks the client to retry after retryAfterSecs.
func WriteUnavailable(w http.ResponseWriter, retryAfterSecs int, detail string) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	NewProblem(http.StatusServiceUnavailable, detail).Write(w)
}

// WriteInternal logs err and answers 500 without exposing it.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err, "request_id", w.Header().Get("X-Request-ID"))
	NewProblem(http.StatusInternalServerError, "").Write(w)
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
