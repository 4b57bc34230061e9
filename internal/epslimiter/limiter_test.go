package epslimiter

import (
	"sync"
	"testing"
	"time"

	"github.com/wazuh-go/epsd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	doc    config.Document
	status config.LookupStatus
}

func (f fakeSource) Lookup(string) (config.Document, config.LookupStatus) {
	return f.doc, f.status
}

func disabledSource() fakeSource {
	return fakeSource{status: config.StatusDisabled}
}

func enabledSource(maxEPS, timeframe interface{}) fakeSource {
	return fakeSource{
		status: config.StatusOK,
		doc:    config.Document{MaxEPS: maxEPS, TimeframeEPS: timeframe},
	}
}

func newTestLimiter() *Limiter {
	return New("test-daemon", nil, nil)
}

func TestLoadDisabledSentinel(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(disabledSource()))
	snap := l.Snapshot()
	assert.False(t, snap.Enabled)
	assert.Equal(t, Disabled, snap.State)
}

func TestLoadMissingMaxEPSDisables(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(nil, 10)))
	assert.False(t, l.Snapshot().Enabled)
}

func TestLoadZeroMaxEPSDisables(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(0), 10)))
	assert.False(t, l.Snapshot().Enabled)
}

func TestLoadCoercesTimeframeZeroToOne(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(100), float64(0))))
	snap := l.Snapshot()
	require.True(t, snap.Enabled)
	assert.Equal(t, 100, snap.EPS)
	assert.Equal(t, 1, snap.Timeframe)
	assert.Equal(t, 100, snap.MaxEvents)
	l.Shutdown()
}

func TestLoadCoercesEPSCeiling(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(100001), float64(10))))
	snap := l.Snapshot()
	require.True(t, snap.Enabled)
	assert.Equal(t, 100000, snap.EPS)
	assert.Equal(t, 1000000, snap.MaxEvents)
	l.Shutdown()
}

func TestLoadCoercesMissingTimeframeToDefault(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(50), nil)))
	snap := l.Snapshot()
	require.True(t, snap.Enabled)
	assert.Equal(t, defaultTF, snap.Timeframe)
	l.Shutdown()
}

func TestLoadCoercesTimeframeCeiling(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(4000))))
	snap := l.Snapshot()
	require.True(t, snap.Enabled)
	assert.Equal(t, maxTF, snap.Timeframe)
	l.Shutdown()
}

func TestAcquireCreditNoOpWhenDisabled(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(disabledSource()))

	done := make(chan struct{})
	go func() {
		l.AcquireCredit()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AcquireCredit blocked on a disabled limiter")
	}
	assert.Equal(t, 0, l.Snapshot().WaitCounter)
}

func TestGenerateCreditsFromZero(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(10))))
	defer l.Shutdown()

	assert.Equal(t, 0, l.Snapshot().Credits)
	added := l.GenerateCredits(5)
	assert.Equal(t, 5, added)
	assert.Equal(t, 5, l.Snapshot().Credits)
}

func TestGenerateCreditsZeroIsNoop(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(10))))
	defer l.Shutdown()

	l.GenerateCredits(5)
	before := l.Snapshot().Credits
	l.GenerateCredits(0)
	assert.Equal(t, before, l.Snapshot().Credits)
}

func TestGenerateCreditsClampsToMaxEvents(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(1), float64(5)))) // max_events = 5
	defer l.Shutdown()

	added := l.GenerateCredits(100)
	assert.Equal(t, 5, added)
	assert.Equal(t, 5, l.Snapshot().Credits)
}

func TestCleanCreditsDrainsExactly(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(10))))
	defer l.Shutdown()

	l.GenerateCredits(5)
	removed := l.CleanCredits(5)
	assert.Equal(t, 5, removed)
	assert.Equal(t, 0, l.Snapshot().Credits)
}

func TestCleanCreditsPartial(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(10))))
	defer l.Shutdown()

	l.GenerateCredits(5)
	removed := l.CleanCredits(3)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 2, l.Snapshot().Credits)
}

func TestAcquireCreditAccountsOnCurrentCell(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(10))))
	defer l.Shutdown()

	l.GenerateCredits(5)
	l.AcquireCredit()

	snap := l.Snapshot()
	assert.Equal(t, 4, snap.Credits)
	assert.Equal(t, 0, snap.WaitCounter)

	l.mu.Lock()
	got := l.circBuf[l.currentCell]
	l.mu.Unlock()
	assert.EqualValues(t, 1, got)
}

func TestShutdownUnblocksWaiters(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(10))))

	var wg sync.WaitGroup
	const waiters = 3
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			l.AcquireCredit()
		}()
	}

	// Give the waiters a chance to block on the empty pool.
	deadline := time.Now().Add(2 * time.Second)
	for l.Snapshot().WaitCounter < waiters && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, waiters, l.Snapshot().WaitCounter)

	l.Shutdown()

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not release all waiters")
	}
	assert.False(t, l.Snapshot().Enabled)
}

func TestTickRetiresSlotAndRegeneratesCredits(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(3))))
	defer l.Shutdown()

	l.mu.Lock()
	l.circBuf[1] = 7
	l.currentCell = 0
	l.mu.Unlock()

	l.tick()

	snap := l.Snapshot()
	assert.Equal(t, 7, snap.Credits)

	l.mu.Lock()
	cell, retiredSlot := l.currentCell, l.circBuf[1]
	l.mu.Unlock()
	assert.Equal(t, 1, cell)
	assert.EqualValues(t, 0, retiredSlot)
}

func TestSlidingWindowNeverExceedsEPSTimesTimeframe(t *testing.T) {
	l := newTestLimiter()
	const eps, timeframe = 5, 3
	require.NoError(t, l.Load(enabledSource(float64(eps), float64(timeframe))))
	defer l.Shutdown()

	maxEvents := eps * timeframe
	l.GenerateCredits(maxEvents)

	admitted := 0
	for i := 0; i < maxEvents; i++ {
		l.AcquireCredit()
		admitted++
	}
	assert.LessOrEqual(t, admitted, maxEvents)
	assert.Equal(t, 0, l.Snapshot().Credits)
}

func TestLoadIsIdempotentAcrossReload(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(10))))
	require.NoError(t, l.Load(enabledSource(float64(20), float64(5))))

	snap := l.Snapshot()
	assert.Equal(t, 20, snap.EPS)
	assert.Equal(t, 5, snap.Timeframe)
	l.Shutdown()
}

func TestLoadReleasesWaitersBlockedOnSupersededPool(t *testing.T) {
	l := newTestLimiter()
	require.NoError(t, l.Load(enabledSource(float64(10), float64(10))))
	defer l.Shutdown()

	var wg sync.WaitGroup
	const waiters = 3
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			l.AcquireCredit()
		}()
	}

	// Give the waiters a chance to block on the empty pool before reload.
	deadline := time.Now().Add(2 * time.Second)
	for l.Snapshot().WaitCounter < waiters && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, waiters, l.Snapshot().WaitCounter)

	require.NoError(t, l.Load(enabledSource(float64(5), float64(5))))

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("reload did not release waiters blocked on the superseded pool")
	}

	// The reload's own generation must come up unaffected: no leftover
	// waitCounter from the released generation, and the new pool starts
	// empty like every freshly loaded pool (the ticker fills it).
	snap := l.Snapshot()
	assert.Equal(t, 0, snap.WaitCounter)
	assert.Equal(t, 0, snap.Credits)
}
