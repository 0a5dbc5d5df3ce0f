// Package gateway serializes access to the recognition engine. Exactly one
// engine call is in flight at any time: every invocation goes through a
// buffered FIFO task queue drained by a single worker goroutine. Batch
// fan-out therefore raises queue depth, never engine load.
package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/docuflow/ocr-service/internal/ocr/engine"
	"github.com/docuflow/ocr-service/pkg/logger"
)

var (
	// ErrNotStarted is returned when Recognize is called before Start
	ErrNotStarted = errors.New("recognition gateway not started")
	// ErrShuttingDown is returned for calls made after Shutdown begins
	ErrShuttingDown = errors.New("recognition gateway is shutting down")
)

type result struct {
	out engine.Output
	err error
}

type task struct {
	ctx context.Context
	in  engine.Input
	// done is buffered so the worker never blocks on an abandoned caller
	done chan result
}

// Gateway owns the single-worker recognition queue
type Gateway struct {
	engine engine.Engine
	tasks  chan *task
	logger *logger.Logger

	// mu guards started/closed; sends to tasks happen under the read
	// lock so close can never race a send
	mu      sync.RWMutex
	started bool
	closed  bool

	startOnce sync.Once
	stopOnce  sync.Once
	drained   chan struct{}
}

// New builds a Gateway around eng with the given queue capacity
func New(eng engine.Engine, queueSize int, log *logger.Logger) *Gateway {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Gateway{
		engine:  eng,
		tasks:   make(chan *task, queueSize),
		logger:  log.WithComponent("gateway"),
		drained: make(chan struct{}),
	}
}

// Start launches the worker. Calling Start more than once is a no-op.
func (g *Gateway) Start() {
	g.startOnce.Do(func() {
		g.mu.Lock()
		g.started = true
		g.mu.Unlock()

		go g.worker()
		g.logger.Info().Str("engine", g.engine.Name()).Int("queue_size", cap(g.tasks)).Msg("recognition worker started")
	})
}

func (g *Gateway) worker() {
	defer close(g.drained)

	for t := range g.tasks {
		// A caller that gave up while queued is skipped, not executed.
		if err := t.ctx.Err(); err != nil {
			t.done <- result{err: err}
			continue
		}
		out, err := g.engine.Recognize(t.ctx, t.in)
		t.done <- result{out: out, err: err}
	}
}

// Recognize queues one engine call and blocks until it completes or ctx is
// cancelled. Cancellation while queued abandons the task; a call already
// executing on the worker is not preempted.
func (g *Gateway) Recognize(ctx context.Context, in engine.Input) (engine.Output, error) {
	g.mu.RLock()
	if !g.started {
		g.mu.RUnlock()
		return engine.Output{}, ErrNotStarted
	}
	if g.closed {
		g.mu.RUnlock()
		return engine.Output{}, ErrShuttingDown
	}

	t := &task{ctx: ctx, in: in, done: make(chan result, 1)}
	select {
	case g.tasks <- t:
		g.mu.RUnlock()
	case <-ctx.Done():
		g.mu.RUnlock()
		return engine.Output{}, ctx.Err()
	}

	select {
	case res := <-t.done:
		return res.out, res.err
	case <-ctx.Done():
		return engine.Output{}, ctx.Err()
	}
}

// Ready reports whether the gateway is accepting tasks
func (g *Gateway) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.started && !g.closed
}

// Shutdown stops intake, lets the worker drain everything already queued,
// then waits for it to exit or for ctx to expire. Only the first call
// does anything.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.RLock()
	started := g.started
	g.mu.RUnlock()
	if !started {
		return nil
	}

	g.stopOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		queued := len(g.tasks)
		close(g.tasks)
		g.mu.Unlock()

		g.logger.Info().Int("queued", queued).Msg("recognition gateway draining")
	})

	select {
	case <-g.drained:
		g.logger.Info().Msg("recognition worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
