package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeGate struct {
	blockFor time.Duration
}

func (g fakeGate) AcquireCredit() {
	if g.blockFor > 0 {
		time.Sleep(g.blockFor)
	}
}

func TestAdmissionMiddlewareAllowsWhenGateReturnsPromptly(t *testing.T) {
	m := NewAdmissionMiddleware(fakeGate{}, 50*time.Millisecond, nil)
	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmissionMiddlewareRejectsOnTimeout(t *testing.T) {
	m := NewAdmissionMiddleware(fakeGate{blockFor: 200 * time.Millisecond}, 10*time.Millisecond, nil)
	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":1`)
}
