package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/wazuh-go/epsd/internal/envelope"
)

// Gate is the admission collaborator an AdmissionMiddleware delegates
// to. *epslimiter.Limiter satisfies this.
type Gate interface {
	AcquireCredit()
}

// AdmissionMiddleware enforces the daemon's events-per-second limit on
// HTTP requests by delegating every decision to a Gate instead of
// keeping its own window state. A request waits up to Timeout for a
// credit; if none arrives in time it is rejected with a 429 and an
// envelope.Response body, matching the daemon's own wire format.
type AdmissionMiddleware struct {
	gate    Gate
	timeout time.Duration
	logger  *slog.Logger
}

// NewAdmissionMiddleware constructs an AdmissionMiddleware. A zero
// timeout disables waiting entirely: requests are admitted immediately
// once a credit is available within one scheduler tick, rejected
// otherwise. A nil logger falls back to slog.Default().
func NewAdmissionMiddleware(gate Gate, timeout time.Duration, logger *slog.Logger) *AdmissionMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionMiddleware{gate: gate, timeout: timeout, logger: logger}
}

// Middleware returns an HTTP middleware that gates every request
// through the admission Gate before calling next.
func (m *AdmissionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.admit() {
			m.logger.Warn("request rejected, no eps credit available", "path", r.URL.Path)
			resp := envelope.NewMessage("rate limit exceeded")
			resp.SetError(envelope.UnknownError)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(resp.String()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// admit blocks up to m.timeout for a credit. The acquiring goroutine is
// not canceled on timeout: the credit, once granted, is simply consumed
// a little late rather than leaked.
func (m *AdmissionMiddleware) admit() bool {
	done := make(chan struct{})
	go func() {
		m.gate.AcquireCredit()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(m.timeout):
		return false
	}
}
