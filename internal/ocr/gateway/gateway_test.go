package gateway_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/ocr-service/internal/ocr/engine"
	"github.com/docuflow/ocr-service/internal/ocr/gateway"
	"github.com/docuflow/ocr-service/pkg/logger"
	"github.com/docuflow/ocr-service/pkg/testutil"
)

// stubEngine records concurrency and call order so queue behavior can be
// asserted from the outside.
type stubEngine struct {
	gate     chan struct{}
	delay    time.Duration
	err      error
	inflight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32

	mu    sync.Mutex
	order []string
}

func (s *stubEngine) Name() string                    { return "stub" }
func (s *stubEngine) Ready(ctx context.Context) error { return nil }
func (s *stubEngine) Close() error                    { return nil }

func (s *stubEngine) Recognize(ctx context.Context, in engine.Input) (engine.Output, error) {
	cur := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		max := s.maxSeen.Load()
		if cur <= max || s.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	s.calls.Add(1)

	s.mu.Lock()
	s.order = append(s.order, in.Path)
	s.mu.Unlock()

	if s.gate != nil {
		<-s.gate
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return engine.Output{}, s.err
	}
	return engine.Output{Pages: []engine.Page{{Index: 1, Markdown: "text"}}}, nil
}

func (s *stubEngine) executionOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func newGateway(eng engine.Engine) *gateway.Gateway {
	return gateway.New(eng, 8, logger.New("test", "test"))
}

func TestGateway_ExactlyOneInflight(t *testing.T) {
	eng := &stubEngine{delay: 5 * time.Millisecond}
	gw := newGateway(eng)
	gw.Start()
	defer gw.Shutdown(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Recognize(context.Background(), engine.Input{Path: "doc"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), eng.maxSeen.Load(), "more than one engine call was in flight")
	assert.Equal(t, int32(12), eng.calls.Load())
}

func TestGateway_FIFOOrder(t *testing.T) {
	eng := &stubEngine{gate: make(chan struct{})}
	gw := newGateway(eng)
	gw.Start()
	defer gw.Shutdown(context.Background())

	var wg sync.WaitGroup
	for _, path := range []string{"first", "second", "third", "fourth"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := gw.Recognize(context.Background(), engine.Input{Path: p})
			assert.NoError(t, err)
		}(path)
		// Space out submissions so queue order matches submission order.
		time.Sleep(30 * time.Millisecond)
	}

	close(eng.gate)
	wg.Wait()

	assert.Equal(t, []string{"first", "second", "third", "fourth"}, eng.executionOrder())
}

func TestGateway_RecognizeBeforeStart(t *testing.T) {
	gw := newGateway(&stubEngine{})

	_, err := gw.Recognize(context.Background(), engine.Input{Path: "doc"})
	require.ErrorIs(t, err, gateway.ErrNotStarted)
	assert.False(t, gw.Ready())
}

func TestGateway_RejectsAfterShutdown(t *testing.T) {
	gw := newGateway(&stubEngine{})
	gw.Start()
	require.True(t, gw.Ready())

	require.NoError(t, gw.Shutdown(context.Background()))
	assert.False(t, gw.Ready())

	_, err := gw.Recognize(context.Background(), engine.Input{Path: "doc"})
	require.ErrorIs(t, err, gateway.ErrShuttingDown)

	// Shutdown is idempotent.
	require.NoError(t, gw.Shutdown(context.Background()))
}

func TestGateway_CancelledWhileQueued(t *testing.T) {
	eng := &stubEngine{gate: make(chan struct{})}
	gw := newGateway(eng)
	gw.Start()
	defer gw.Shutdown(context.Background())

	firstDone := make(chan error, 1)
	go func() {
		_, err := gw.Recognize(context.Background(), engine.Input{Path: "occupant"})
		firstDone <- err
	}()

	// Wait until the occupant is executing so the next call queues behind it.
	testutil.RequireEventually(t, func() bool {
		return eng.inflight.Load() == 1
	}, time.Second, 5*time.Millisecond, "occupant never reached the engine")

	ctx, cancel := context.WithCancel(context.Background())
	queuedDone := make(chan error, 1)
	go func() {
		_, err := gw.Recognize(ctx, engine.Input{Path: "queued"})
		queuedDone <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-queuedDone, context.Canceled)

	close(eng.gate)
	require.NoError(t, <-firstDone)

	// The worker must skip the abandoned task instead of executing it.
	testutil.RequireEventually(t, func() bool {
		return len(eng.executionOrder()) == 1
	}, time.Second, 5*time.Millisecond, "worker executed an abandoned task")
	assert.Equal(t, []string{"occupant"}, eng.executionOrder())
}

func TestGateway_ShutdownDrainsQueuedTasks(t *testing.T) {
	eng := &stubEngine{gate: make(chan struct{})}
	gw := newGateway(eng)
	gw.Start()

	results := make(chan error, 3)
	for _, path := range []string{"a", "b", "c"} {
		go func(p string) {
			_, err := gw.Recognize(context.Background(), engine.Input{Path: p})
			results <- err
		}(path)
	}

	testutil.RequireEventually(t, func() bool {
		return eng.inflight.Load() == 1
	}, time.Second, 5*time.Millisecond, "no task reached the engine")
	time.Sleep(50 * time.Millisecond)

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownDone <- gw.Shutdown(ctx)
	}()

	// Intake closes promptly even while the worker is still draining.
	testutil.RequireEventually(t, func() bool {
		return !gw.Ready()
	}, time.Second, 5*time.Millisecond, "gateway never stopped accepting")

	_, err := gw.Recognize(context.Background(), engine.Input{Path: "late"})
	require.ErrorIs(t, err, gateway.ErrShuttingDown)

	close(eng.gate)

	for i := 0; i < 3; i++ {
		require.NoError(t, <-results, "queued task was dropped during drain")
	}
	require.NoError(t, <-shutdownDone)
	assert.Equal(t, int32(3), eng.calls.Load())
}

func TestGateway_EngineErrorPropagates(t *testing.T) {
	boom := errors.New("engine exploded")
	gw := newGateway(&stubEngine{err: boom})
	gw.Start()
	defer gw.Shutdown(context.Background())

	_, err := gw.Recognize(context.Background(), engine.Input{Path: "doc"})
	require.ErrorIs(t, err, boom)
}
