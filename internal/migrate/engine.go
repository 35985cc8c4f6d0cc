// Package migrate moves GitHub issues and Trello cards into Shortcut
// stories.
//
// Every pipeline has the same shape: list source records, submit one task
// per record to a fixed-size Pool, and drain it. A task first searches
// Shortcut for the record's external-id marker and skips records that were
// migrated before, so a pipeline can be re-run safely.
package migrate

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dataiku/clubhouse-migration/internal/shortcut"
	"github.com/dataiku/clubhouse-migration/internal/telemetry"
)

// Target is the part of the Shortcut API the migration pipelines use.
type Target interface {
	FindProject(ctx context.Context, name string) (*shortcut.Project, error)
	GetWorkflow(ctx context.Context, id int64) (*shortcut.Workflow, error)
	ListMembers(ctx context.Context) ([]shortcut.Member, error)
	ListEpics(ctx context.Context) ([]shortcut.EpicSlim, error)
	CreateEpic(ctx context.Context, params shortcut.CreateEpicParams) (*shortcut.Epic, error)
	FindStoryByExternalID(ctx context.Context, externalID string) (*shortcut.StorySlim, error)
	CreateStory(ctx context.Context, params *shortcut.CreateStoryParams) (*shortcut.Story, error)
	CreateLinkedFile(ctx context.Context, params shortcut.CreateLinkedFileParams) (*shortcut.LinkedFile, error)
}

// Options are shared by the pipelines.
type Options struct {
	// Project is the Shortcut project receiving the stories.
	Project string

	// DryRun runs every read and search but creates nothing.
	DryRun bool

	// DrainTimeout bounds the final wait of Run; zero means DefaultDrainTimeout.
	DrainTimeout time.Duration

	// MaxAttempts bounds rate-limit retries per record; zero means unbounded.
	MaxAttempts int

	Logger *slog.Logger
}

// Stats counts record outcomes. It is safe for concurrent use.
type Stats struct {
	migrated atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
	retried  atomic.Int64
}

// Counts is a point-in-time copy of Stats.
type Counts struct {
	Migrated int64
	Skipped  int64
	Failed   int64
	Retried  int64
}

// Snapshot returns the current counts.
func (s *Stats) Snapshot() Counts {
	return Counts{
		Migrated: s.migrated.Load(),
		Skipped:  s.skipped.Load(),
		Failed:   s.failed.Load(),
		Retried:  s.retried.Load(),
	}
}

// engine runs the idempotent create-or-skip step shared by all pipelines.
type engine struct {
	target      Target
	opts        Options
	logger      *slog.Logger
	stats       Stats
	metrics     *telemetry.Records
	rateLimited Classifier

	// sleep overrides the cool-down sleep of tasks; nil uses the real clock.
	sleep func(ctx context.Context, d time.Duration) error
}

func newEngine(source string, target Target, opts Options, rateLimited Classifier) *engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &engine{
		target:      target,
		opts:        opts,
		logger:      logger.With("component", "migration."+source),
		metrics:     telemetry.NewRecords(source),
		rateLimited: rateLimited,
	}
}

// Stats returns the outcome counters of the pipeline.
func (e *engine) Stats() Counts {
	return e.stats.Snapshot()
}

// DryRun reports whether the pipeline only simulates writes.
func (e *engine) DryRun() bool {
	return e.opts.DryRun
}

// migrateRecord skips the record if a story already carries marker and
// otherwise calls create. Rate-limited failures re-run the whole step,
// search included, after a cool-down.
func (e *engine) migrateRecord(ctx context.Context, marker, label string, create func(ctx context.Context) (*shortcut.Story, error)) error {
	ctx, span, start := e.metrics.Start(ctx, "migrate", marker)

	var skipped bool
	run := func(ctx context.Context) error {
		existing, err := e.target.FindStoryByExternalID(ctx, marker)
		if err != nil {
			return err
		}
		if existing != nil {
			skipped = true
			e.logger.Info("Skipping "+label+": already migrated", "record", marker, "story_id", existing.ID)
			return nil
		}
		story, err := create(ctx)
		if err != nil {
			return err
		}
		if story != nil {
			e.logger.Info("Migrated "+label, "record", marker, "story_id", story.ID)
		} else {
			e.logger.Info("[dry-run] Would migrate "+label, "record", marker)
		}
		return nil
	}

	classify := func(err error) bool {
		if e.rateLimited == nil || !e.rateLimited(err) {
			return false
		}
		e.stats.retried.Add(1)
		e.metrics.Retry(ctx)
		return true
	}

	task := NewTask(marker, run, classify, e.logger)
	task.MaxAttempts = e.opts.MaxAttempts
	if e.sleep != nil {
		task.sleep = e.sleep
	}

	err := task.Execute(ctx)
	outcome := telemetry.OutcomeMigrated
	switch {
	case err != nil:
		outcome = telemetry.OutcomeFailed
		e.stats.failed.Add(1)
	case skipped:
		outcome = telemetry.OutcomeSkipped
		e.stats.skipped.Add(1)
	default:
		e.stats.migrated.Add(1)
	}
	e.metrics.Done(ctx, span, start, outcome, err)
	return err
}

// drain submits jobs to a fresh pool and waits for them.
func (e *engine) drain(ctx context.Context, workers int, jobs []func(ctx context.Context)) error {
	pool := NewPool(workers, e.logger)
	for _, job := range jobs {
		if err := pool.Submit(ctx, job); err != nil {
			e.logger.Warn("stopped submitting records", "error", err)
			break
		}
	}
	e.logger.Info("Waiting for completion of pending tasks...")
	if err := pool.Drain(ctx, e.opts.DrainTimeout); err != nil {
		return err
	}
	e.logger.Info("Done.")
	return nil
}

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
