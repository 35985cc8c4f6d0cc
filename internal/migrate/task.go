package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Cool-down bounds applied after an upstream rate limit. Delays are drawn
// uniformly from [MinCoolDown, MaxCoolDown].
const (
	MinCoolDown = 60 * time.Second
	MaxCoolDown = 120 * time.Second
)

// State is the lifecycle state of a Task.
type State int

const (
	Pending State = iota
	Retrying
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Retrying:
		return "retrying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Classifier reports whether err is a transient rate-limit condition.
type Classifier func(err error) bool

// NewCoolDownBackOff returns a backoff that yields independent random delays
// in [MinCoolDown, MaxCoolDown] forever.
func NewCoolDownBackOff() *backoff.ExponentialBackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = (MinCoolDown + MaxCoolDown) / 2
	bo.RandomizationFactor = float64(MaxCoolDown-MinCoolDown) / float64(MinCoolDown+MaxCoolDown)
	bo.Multiplier = 1
	bo.MaxInterval = MaxCoolDown
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Task drives one record through Pending -> (Retrying)* -> Done | Failed.
// A run error classified as rate limited moves the task to Retrying and it
// runs again after a cool-down; any other error fails it.
type Task struct {
	ID string

	// MaxAttempts bounds the number of runs; zero means unbounded.
	MaxAttempts int

	run         func(ctx context.Context) error
	rateLimited Classifier
	backOff     backoff.BackOff
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	state    State
	delay    time.Duration
	attempts int
	delays   []time.Duration
	err      error
}

// NewTask creates a pending task. rateLimited may be nil, in which case no
// error is retried.
func NewTask(id string, run func(ctx context.Context) error, rateLimited Classifier, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		ID:          id,
		run:         run,
		rateLimited: rateLimited,
		backOff:     NewCoolDownBackOff(),
		logger:      logger,
		sleep:       sleepContext,
	}
}

// State returns the current state.
func (t *Task) State() State { return t.state }

// Delay returns the pending cool-down while the task is Retrying.
func (t *Task) Delay() time.Duration { return t.delay }

// Attempts returns how many times the record function ran.
func (t *Task) Attempts() int { return t.attempts }

// Delays returns every cool-down chosen so far.
func (t *Task) Delays() []time.Duration { return t.delays }

// Err returns the error that failed the task.
func (t *Task) Err() error { return t.err }

// Step performs one transition. In Retrying it first sleeps the pending
// delay; cancellation during the sleep fails the task with the ctx error.
func (t *Task) Step(ctx context.Context) State {
	switch t.state {
	case Done, Failed:
		return t.state
	case Retrying:
		if err := t.sleep(ctx, t.delay); err != nil {
			return t.fail(err)
		}
	}

	t.attempts++
	err := t.run(ctx)
	switch {
	case err == nil:
		t.state = Done
		t.delay = 0
	case t.rateLimited != nil && t.rateLimited(err):
		if t.MaxAttempts > 0 && t.attempts >= t.MaxAttempts {
			return t.fail(fmt.Errorf("giving up after %d attempts: %w", t.attempts, err))
		}
		t.delay = t.backOff.NextBackOff()
		t.delays = append(t.delays, t.delay)
		t.state = Retrying
		t.logger.Warn("rate limited by upstream, cooling down before retrying",
			"record", t.ID,
			"attempt", t.attempts,
			"delay", t.delay.Round(time.Second))
	default:
		return t.fail(err)
	}
	return t.state
}

// Execute steps the task until it is Done or Failed and returns the final
// error, if any.
func (t *Task) Execute(ctx context.Context) error {
	for {
		switch t.Step(ctx) {
		case Done:
			return nil
		case Failed:
			return t.err
		}
	}
}

func (t *Task) fail(err error) State {
	t.state = Failed
	t.delay = 0
	t.err = err
	t.logger.Warn("failed to migrate record", "record", t.ID, "error", err)
	return t.state
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
