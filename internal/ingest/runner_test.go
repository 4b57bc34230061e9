package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGate struct {
	calls int32
}

func (g *countingGate) AcquireCredit() { atomic.AddInt32(&g.calls, 1) }

type fixedSource struct {
	name     string
	priority int
	events   [][]byte
	idx      int32
}

func (s *fixedSource) Name() string  { return s.name }
func (s *fixedSource) Priority() int { return s.priority }

func (s *fixedSource) Next(ctx context.Context) ([]byte, error) {
	i := atomic.AddInt32(&s.idx, 1) - 1
	if int(i) >= len(s.events) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.events[i], nil
}

func TestRunnerAcquiresOncePerEvent(t *testing.T) {
	reg := NewRegistry(nil)
	src := &fixedSource{name: "a", events: [][]byte{[]byte("1"), []byte("2"), []byte("3")}}
	require.NoError(t, reg.Register(src))

	gate := &countingGate{}
	var processed int32
	proc := ProcessorFunc(func(ctx context.Context, sourceName string, event []byte) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	runner := NewRunner(reg, gate, proc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	runner.Run(ctx)

	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
	assert.Equal(t, int32(3), atomic.LoadInt32(&gate.calls))
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	reg := NewRegistry(nil)
	src := &fixedSource{name: "a"}
	require.NoError(t, reg.Register(src))

	gate := &countingGate{}
	proc := ProcessorFunc(func(ctx context.Context, sourceName string, event []byte) error { return nil })
	runner := NewRunner(reg, gate, proc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
}
