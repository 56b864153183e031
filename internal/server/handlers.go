package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/normanking/jarvis/internal/logging"
)

// maxRouteBody bounds POST /api/route bodies.
const maxRouteBody = 64 << 10

// handleRoute answers one utterance.
// POST /api/route
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRouteBody))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, ErrBadRequest.with("invalid JSON body: "+err.Error()))
		return
	}

	resp := s.svc.Route(r.Context(), req.Text)
	if resp.FellBack {
		logging.FromContext(r.Context()).Info("answered offline after %s fallback", resp.FallbackReason)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMode reports the current mode and routing counters.
// GET /api/mode
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModeResponse{
		Mode:  s.svc.State().String(),
		Stats: s.svc.Stats(),
	})
}

// handleToggle runs the manual switch. A rejected switch is still a 200:
// the outcome field says what happened.
// POST /api/mode/toggle
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Toggle(r.Context()))
}

// handleHistory returns the most recent entries, oldest first.
// GET /api/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, ErrBadRequest.with("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries := s.svc.History(limit)
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// handleClearHistory removes every entry.
// DELETE /api/history
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.ClearHistory(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("clear history: %v", err)
		writeError(w, ErrInternal.with(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Removed: n})
}

// handleExportHistory streams the log as a JSON array download.
// GET /api/history/export
func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	name := "jarvis-history-" + time.Now().UTC().Format("20060102-150405") + ".json"
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := s.svc.ExportHistory(w); err != nil {
		logging.FromContext(r.Context()).Error("export history: %v", err)
	}
}

// handleRetrain runs a synchronous retrain.
// POST /api/retrain
func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newRetrainResponse(s.svc.Retrain(r.Context())))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, e *APIError) {
	writeJSON(w, e.Code, e)
}
