// Package server exposes the assistant over HTTP: a JSON text boundary for
// routing utterances and toggling modes, history maintenance, Prometheus
// metrics and a websocket event stream.
package server

import (
	"context"
	"io"
	"time"

	"github.com/normanking/jarvis/internal/convlog"
	"github.com/normanking/jarvis/internal/retrain"
	"github.com/normanking/jarvis/internal/router"
)

// Service is the assistant surface the server drives.
type Service interface {
	Route(ctx context.Context, utterance string) router.Response
	Toggle(ctx context.Context) router.ToggleResult
	State() router.State
	Stats() router.Stats
	History(limit int) []convlog.Entry
	ExportHistory(w io.Writer) error
	ClearHistory(ctx context.Context) (int, error)
	Retrain(ctx context.Context) retrain.Outcome
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds server configuration.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:8765).
	Addr string

	// AllowAllOrigins disables the localhost-only CORS policy.
	AllowAllOrigins bool

	// RequestTimeout bounds a single request. It must exceed the remote
	// generation timeout so fallback can still happen inside the request.
	RequestTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout (default: 5s).
	ShutdownTimeout time.Duration
}

// DefaultConfig returns defaults for the server.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8765",
		RequestTimeout:  60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// API TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// RouteRequest is the body of POST /api/route.
type RouteRequest struct {
	Text string `json:"text"`
}

// ModeResponse is returned by GET /api/mode.
type ModeResponse struct {
	Mode  string       `json:"mode"`
	Stats router.Stats `json:"stats"`
}

// HistoryResponse is returned by GET /api/history.
type HistoryResponse struct {
	Entries []convlog.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// ClearResponse is returned by DELETE /api/history.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// RetrainResponse is returned by POST /api/retrain.
type RetrainResponse struct {
	Trigger    string `json:"trigger"`
	Result     string `json:"result"`
	Samples    int    `json:"samples"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func newRetrainResponse(out retrain.Outcome) RetrainResponse {
	resp := RetrainResponse{
		Trigger:    string(out.Trigger),
		Result:     string(out.Result),
		Samples:    out.Samples,
		DurationMs: out.Duration.Milliseconds(),
	}
	if out.Snapshot != nil {
		resp.SnapshotID = out.Snapshot.ID
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}

// ═══════════════════════════════════════════════════════════════════════════════
// API ERROR TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// APIError represents a structured API error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Common API errors.
var (
	ErrBadRequest = &APIError{Code: 400, Message: "bad request"}
	ErrInternal   = &APIError{Code: 500, Message: "internal server error"}
)

func (e *APIError) with(details string) *APIError {
	out := *e
	out.Details = details
	return &out
}
