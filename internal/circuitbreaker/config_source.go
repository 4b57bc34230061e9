package circuitbreaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/wazuh-go/epsd/internal/config"
)

// Fetcher is a configuration collaborator that can actually fail, such
// as a networked config service, unlike the plain on-disk config.Loader,
// which reports every failure as StatusDisabled. ConfigSourceBreaker adapts a
// Fetcher into a config.Source the limiter can consume directly.
type Fetcher interface {
	Fetch(daemonName string) (config.Document, config.LookupStatus, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(daemonName string) (config.Document, config.LookupStatus, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(daemonName string) (config.Document, config.LookupStatus, error) {
	return f(daemonName)
}

// ConfigSourceBreaker wraps a Fetcher so repeated failures trip the
// breaker open; while open, Lookup falls back to the last document
// fetched successfully (if any) rather than propagating the failure into
// the limiter's Load path. A failed fetch while the breaker is still
// closed, or with no document fetched yet, resolves to StatusDisabled.
// This keeps a flapping configuration backend
// inside the "configuration faults are always recovered locally"
// contract instead of escalating it.
type ConfigSourceBreaker struct {
	fetcher Fetcher
	breaker *CircuitBreaker

	lastGood    config.Document
	haveLastDoc bool
}

// NewConfigSourceBreaker wraps fetcher with a breaker named after the
// daemon it serves.
func NewConfigSourceBreaker(name string, fetcher Fetcher, logger *slog.Logger) *ConfigSourceBreaker {
	cfg := DefaultConfig(name, logger)
	cfg.MaxRequests = 1
	cfg.Interval = 30 * time.Second
	cfg.Timeout = 15 * time.Second
	cfg.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 3 }

	return &ConfigSourceBreaker{
		fetcher: fetcher,
		breaker: New(cfg),
	}
}

// Lookup implements config.Source.
func (b *ConfigSourceBreaker) Lookup(daemonName string) (config.Document, config.LookupStatus) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		doc, status, ferr := b.fetcher.Fetch(daemonName)
		if ferr != nil {
			return nil, ferr
		}
		return lookupResult{doc: doc, status: status}, nil
	})

	if err != nil {
		rejected := errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
		if rejected && b.haveLastDoc {
			return b.lastGood, config.StatusOK
		}
		return config.Document{}, config.StatusDisabled
	}

	res := result.(lookupResult)
	if res.status == config.StatusOK {
		b.lastGood = res.doc
		b.haveLastDoc = true
	}
	return res.doc, res.status
}

// State exposes the wrapped breaker's state for observability.
func (b *ConfigSourceBreaker) State() State { return b.breaker.State() }

type lookupResult struct {
	doc    config.Document
	status config.LookupStatus
}
