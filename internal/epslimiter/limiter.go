// Package epslimiter implements the events-per-second admission control
// core: a semaphore of "credits" refilled on a sliding timeframe, gating
// how many events the daemon admits for processing per second.
package epslimiter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wazuh-go/epsd/internal/config"
)

// State is the limiter's lifecycle state.
type State int

const (
	// Disabled is the initial state and the state reached whenever Load
	// sees a disabled sentinel or an invalid configuration.
	Disabled State = iota
	// Enabled means acquire_credit gates on the credit pool.
	Enabled
	// ShuttingDown is terminal: all blocked acquirers are released and
	// new acquires behave as disabled.
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "DISABLED"
	case Enabled:
		return "ENABLED"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	default:
		return "UNKNOWN"
	}
}

const (
	minEPS    = 1
	maxEPS    = 100000
	minTF     = 1
	maxTF     = 3600
	defaultTF = 10
)

// Recorder receives observational events from the limiter. Every method is
// a no-op under a nil Recorder; nothing the limiter does on the admission
// path depends on a Recorder call succeeding or even being wired up.
type Recorder interface {
	SetCredits(value, capacity int)
	SetWaitCounter(n int)
	IncAdmitted()
	IncRetired(n int)
	IncCoercion(field string)
}

// Snapshot is a point-in-time, read-only view of LimitsState.
type Snapshot struct {
	Enabled     bool
	EPS         int
	Timeframe   int
	MaxEvents   int
	WaitCounter int
	Credits     int
	State       State
}

// Limiter is the EPS admission control core. The zero value is not usable;
// construct with New.
type Limiter struct {
	daemonName string
	logger     *slog.Logger
	recorder   Recorder

	mu          sync.Mutex
	state       State
	enabled     bool
	eps         int
	timeframe   int
	maxEvents   int
	circBuf     []uint64
	currentCell int
	waitCounter int
	credits     *creditSemaphore

	tickerStop chan struct{}
	tickerDone chan struct{}
}

// New constructs a disabled Limiter. daemonName is passed through to the
// configuration source on every Load call, matching the
// load_limits_file(daemon_name) collaborator contract. A nil logger falls
// back to slog.Default(); a nil recorder disables metrics observation.
func New(daemonName string, logger *slog.Logger, recorder Recorder) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		daemonName: daemonName,
		logger:     logger,
		recorder:   recorder,
		state:      Disabled,
	}
}

// Load reads configuration from source, validates and coerces it, and
// (re)initializes the limiter's state. Load is idempotent: calling it
// again (e.g. on a hot-reload event) safely tears down any running ticker
// and credit pool before rebuilding them. After Shutdown, Load is a no-op.
func (l *Limiter) Load(source config.Source) error {
	l.mu.Lock()
	shutDown := l.state == ShuttingDown
	l.mu.Unlock()
	if shutDown {
		return nil
	}

	doc, status := source.Lookup(l.daemonName)

	l.stopTicker()

	if status == config.StatusDisabled {
		l.logger.Info("eps limit disabled")
		l.setDisabled()
		return nil
	}

	eps, ok := l.resolveEPS(doc.MaxEPS)
	if !ok {
		l.setDisabled()
		return nil
	}

	timeframe := l.resolveTimeframe(doc.TimeframeEPS)

	maxEvents := eps * timeframe
	circBuf := make([]uint64, timeframe)

	l.mu.Lock()
	waiters := l.waitCounter
	oldCredits := l.credits
	l.enabled = true
	l.state = Enabled
	l.eps = eps
	l.timeframe = timeframe
	l.maxEvents = maxEvents
	l.circBuf = circBuf
	l.currentCell = 0
	l.waitCounter = 0
	l.credits = newCreditSemaphore(maxEvents)
	l.mu.Unlock()

	// Any caller already blocked in AcquireCredit captured oldCredits before
	// this swap; release it from the superseded semaphore so it doesn't wait
	// on a pool nothing will ever post to again.
	if oldCredits != nil {
		oldCredits.generate(waiters + 1)
	}

	l.logger.Info(fmt.Sprintf("eps limit enabled, eps: '%d', timeframe: '%d', events per timeframe: '%d'",
		eps, timeframe, maxEvents))
	l.report()

	l.startTicker()
	return nil
}

// resolveEPS validates and coerces max_eps. ok is false when the limiter
// must fall back to disabled.
func (l *Limiter) resolveEPS(raw interface{}) (eps int, ok bool) {
	v, isNumber := toFloat(raw)
	if !isNumber || v == 0 {
		l.logger.Warn("eps limit not found, value set: '0'")
		l.recordCoercion("max_eps")
		return 0, false
	}
	if v > maxEPS {
		l.logger.Warn(fmt.Sprintf("eps limit exceeded, value set: '%d'", maxEPS))
		l.recordCoercion("max_eps")
		return maxEPS, true
	}
	return int(v), true
}

// resolveTimeframe validates and coerces timeframe_eps.
func (l *Limiter) resolveTimeframe(raw interface{}) int {
	v, isNumber := toFloat(raw)
	if !isNumber {
		l.logger.Warn("timeframe not found, dafault value set: '10'")
		l.recordCoercion("timeframe_eps")
		return defaultTF
	}
	if v == 0 {
		l.logger.Warn("timeframe limit exceeded, value set: '1'")
		l.recordCoercion("timeframe_eps")
		return minTF
	}
	if v > maxTF {
		l.logger.Warn(fmt.Sprintf("timeframe limit exceeded, value set: '%d'", maxTF))
		l.recordCoercion("timeframe_eps")
		return maxTF
	}
	return int(v)
}

func (l *Limiter) recordCoercion(field string) {
	if l.recorder != nil {
		l.recorder.IncCoercion(field)
	}
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func (l *Limiter) setDisabled() {
	l.mu.Lock()
	waiters := l.waitCounter
	oldCredits := l.credits
	l.enabled = false
	l.state = Disabled
	l.eps = 0
	l.timeframe = 0
	l.maxEvents = 0
	l.circBuf = nil
	l.currentCell = 0
	l.waitCounter = 0
	l.credits = nil
	l.mu.Unlock()

	if oldCredits != nil {
		oldCredits.generate(waiters + 1)
	}
	l.report()
}

// AcquireCredit blocks the caller until one credit is available, then
// records the consumption against the slot the ticker is currently
// filling. It is a no-op pass-through when the limiter is disabled or
// shutting down.
func (l *Limiter) AcquireCredit() {
	l.mu.Lock()
	if !l.enabled {
		l.mu.Unlock()
		return
	}
	l.waitCounter++
	sem := l.credits
	l.report()
	l.mu.Unlock()

	sem.acquire()

	l.mu.Lock()
	// sem may have been superseded by a concurrent Load/setDisabled while
	// this call was blocked in acquire(); the token that woke it up then
	// came from that reload's release flush, not from the live pool, so
	// it must not be booked against the current generation's waitCounter
	// or circular buffer.
	if l.credits == sem {
		l.waitCounter--
		if l.circBuf != nil {
			l.circBuf[l.currentCell]++
		}
	}
	l.report()
	l.mu.Unlock()

	if l.recorder != nil {
		l.recorder.IncAdmitted()
	}
}

// GenerateCredits adds n credits to the pool without exceeding max_events
// and returns the number actually added. The ticker performs the same
// bounded add on the live pool directly; GenerateCredits is the
// administrative entry point to it.
func (l *Limiter) GenerateCredits(n int) int {
	l.mu.Lock()
	sem := l.credits
	l.mu.Unlock()
	if sem == nil || n <= 0 {
		return 0
	}
	added := sem.generate(n)
	l.report()
	return added
}

// CleanCredits removes up to n credits from the pool without blocking and
// returns the number actually removed; a shortfall (fewer than n credits
// available) is not reported as an error. Load does not call it: a reload
// replaces the pool outright.
func (l *Limiter) CleanCredits(n int) int {
	l.mu.Lock()
	sem := l.credits
	l.mu.Unlock()
	if sem == nil || n <= 0 {
		return 0
	}
	removed := sem.clean(n)
	l.report()
	return removed
}

// Shutdown releases all blocked acquirers by posting wait_counter + 1
// credits so each returns, frees the circular buffer, and marks the
// limiter disabled. Shutdown is terminal: after it returns, AcquireCredit
// behaves as disabled and later Load calls leave the limiter shut down.
func (l *Limiter) Shutdown() {
	l.stopTicker()

	l.mu.Lock()
	waiters := l.waitCounter
	sem := l.credits
	l.enabled = false
	l.state = ShuttingDown
	l.circBuf = nil
	l.mu.Unlock()

	if sem != nil {
		sem.generate(waiters + 1)
	}
	l.report()
}

// Snapshot returns a point-in-time view of the limiter's state, suitable
// for the HTTP control surface or a metrics scrape.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{
		Enabled:     l.enabled,
		EPS:         l.eps,
		Timeframe:   l.timeframe,
		MaxEvents:   l.maxEvents,
		WaitCounter: l.waitCounter,
		State:       l.state,
	}
	if l.credits != nil {
		s.Credits = l.credits.value()
	}
	return s
}

// report pushes the current counters to the recorder, if any. Callers must
// hold l.mu when they have values worth reporting that were just mutated;
// it is also safe to call without the lock (e.g. after GenerateCredits)
// since it only reads through the semaphore's own atomics.
func (l *Limiter) report() {
	if l.recorder == nil {
		return
	}
	l.recorder.SetWaitCounter(l.waitCounter)
	if l.credits != nil {
		l.recorder.SetCredits(l.credits.value(), l.credits.capacity())
	}
}

// startTicker launches the background ticker that advances the sliding
// window once per second. Callers must have already initialized
// l.timeframe/circBuf/credits under the lock.
func (l *Limiter) startTicker() {
	stop := make(chan struct{})
	done := make(chan struct{})
	l.mu.Lock()
	l.tickerStop = stop
	l.tickerDone = done
	l.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.tick()
			case <-stop:
				return
			}
		}
	}()
}

// stopTicker signals the running ticker goroutine (if any) to exit and
// waits for it to do so, so that Load/Shutdown never race a stale ticker
// against newly-initialized state.
func (l *Limiter) stopTicker() {
	l.mu.Lock()
	stop := l.tickerStop
	done := l.tickerDone
	l.tickerStop = nil
	l.tickerDone = nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// tick retires the slot at (current_cell + 1) mod timeframe, advances
// current_cell to it, and regenerates its recorded consumption as fresh
// credits.
func (l *Limiter) tick() {
	l.mu.Lock()
	if !l.enabled || l.timeframe == 0 {
		l.mu.Unlock()
		return
	}
	retireIdx := (l.currentCell + 1) % l.timeframe
	retired := l.circBuf[retireIdx]
	l.circBuf[retireIdx] = 0
	l.currentCell = retireIdx
	sem := l.credits
	l.mu.Unlock()

	if sem != nil && retired > 0 {
		sem.generate(int(retired))
	}
	if l.recorder != nil && retired > 0 {
		l.recorder.IncRetired(int(retired))
	}
	l.report()
}
