// Package httpapi exposes the EPS limiter's control surface over HTTP.
// Every response body is an envelope.Response, matching the daemon's
// own inter-component wire format instead of ad hoc JSON.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wazuh-go/epsd/internal/envelope"
	"github.com/wazuh-go/epsd/internal/epslimiter"
)

// Reloader re-reads configuration and applies it to the limiter. This is
// the synchronous counterpart to the background config.Watcher.
type Reloader interface {
	Reload() error
}

// Server wires the limiter's snapshot and reload operations to HTTP
// routes.
type Server struct {
	limiter  *epslimiter.Limiter
	reloader Reloader
	logger   *slog.Logger
	router   *mux.Router
}

// NewServer builds a Server with its routes registered. A nil logger
// falls back to slog.Default().
func NewServer(limiter *epslimiter.Limiter, reloader Reloader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{limiter: limiter, reloader: reloader, logger: logger, router: mux.NewRouter()}
	s.routes()
	return s
}

// Router returns the underlying http.Handler for embedding or testing.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/limits", s.handleLimits).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/limits/reload", s.handleReload).Methods(http.MethodPost)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp, err := envelope.New(map[string]string{"status": "ok"}, envelope.OK, "")
	writeEnvelope(w, http.StatusOK, resp, err)
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	resp, err := envelope.New(snapshotToMap(s.limiter.Snapshot()), envelope.OK, "")
	writeEnvelope(w, http.StatusOK, resp, err)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		resp, _ := envelope.New(map[string]interface{}{}, envelope.UnknownError, "no reloader configured")
		writeEnvelope(w, http.StatusInternalServerError, resp, nil)
		return
	}

	if err := s.reloader.Reload(); err != nil {
		s.logger.Warn("config reload failed", "error", err)
		resp, _ := envelope.New(map[string]interface{}{}, envelope.UnknownError, "reload failed")
		writeEnvelope(w, http.StatusInternalServerError, resp, nil)
		return
	}

	resp, err := envelope.New(snapshotToMap(s.limiter.Snapshot()), envelope.OK, "")
	writeEnvelope(w, http.StatusOK, resp, err)
}

func snapshotToMap(snap epslimiter.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"enabled":      snap.Enabled,
		"eps":          snap.EPS,
		"timeframe":    snap.Timeframe,
		"max_events":   snap.MaxEvents,
		"wait_counter": snap.WaitCounter,
		"credits":      snap.Credits,
		"state":        snap.State.String(),
	}
}

// writeEnvelope writes resp as the body, falling back to
// envelope.UnknownErrorResponse() if resp itself failed to construct
// (err non-nil), i.e. its data could not be marshaled to JSON.
func writeEnvelope(w http.ResponseWriter, status int, resp envelope.Response, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		resp = envelope.UnknownErrorResponse()
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&resp)
}
