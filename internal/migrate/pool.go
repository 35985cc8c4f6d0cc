package migrate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool sizing and drain defaults.
const (
	DefaultWorkers      = 32
	MaxWorkers          = 64
	DefaultDrainTimeout = 24 * time.Hour
)

var (
	// ErrDrainTimeout is returned by Drain when the ceiling elapsed before
	// every task finished. Outstanding tasks keep running.
	ErrDrainTimeout = errors.New("timed out waiting for tasks to finish")

	// ErrInterrupted is returned by Drain when its context was cancelled
	// while waiting. Outstanding tasks keep running.
	ErrInterrupted = errors.New("interrupted, possibly incomplete")

	// ErrPoolClosed is returned by Submit after Drain was called.
	ErrPoolClosed = errors.New("pool is closed")
)

// Pool runs tasks on a fixed number of goroutines. Task failures stay
// inside the task; the pool only tracks completion.
type Pool struct {
	group   errgroup.Group
	slots   chan struct{}
	workers int
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool of the given size, clamped to [1, MaxWorkers].
func NewPool(workers int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case workers < 1:
		logger.Warn("invalid worker count, using 1", "workers", workers)
		workers = 1
	case workers > MaxWorkers:
		logger.Warn("worker count too high, clamping", "workers", workers, "max", MaxWorkers)
		workers = MaxWorkers
	}
	return &Pool{
		slots:   make(chan struct{}, workers),
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the effective pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit schedules fn. It blocks while all workers are busy and fails
// once the pool is closed or ctx is done. fn receives a context that keeps
// ctx's values but is never cancelled, so an interrupted run does not abort
// records halfway through.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	taskCtx := context.WithoutCancel(ctx)
	p.group.Go(func() error {
		defer func() { <-p.slots }()
		fn(taskCtx)
		return nil
	})
	return nil
}

// Drain closes the pool to new submissions and waits for submitted tasks.
// A non-positive ceiling means DefaultDrainTimeout. Neither the ceiling nor
// ctx cancellation stop tasks that are already running.
func (p *Pool) Drain(ctx context.Context, ceiling time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	if ceiling <= 0 {
		ceiling = DefaultDrainTimeout
	}

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		p.logger.Warn("gave up waiting for pending tasks", "timeout", ceiling)
		return ErrDrainTimeout
	case <-ctx.Done():
		p.logger.Warn("interrupted while waiting for pending tasks")
		return ErrInterrupted
	}
}
