// Package housekeeping keeps a Shortcut workspace tidy after a migration:
// it archives completed work past a grace period, closes epics whose
// stories are all done, attaches release epics to milestones and keeps the
// milestones ordered.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dataiku/clubhouse-migration/internal/migrate"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
	"github.com/dataiku/clubhouse-migration/internal/telemetry"
)

// Target is the part of the Shortcut API housekeeping uses.
type Target interface {
	SearchStories(ctx context.Context, params shortcut.SearchStoriesParams) ([]shortcut.StorySlim, error)
	UpdateStory(ctx context.Context, id int64, params *shortcut.UpdateStoryParams) (*shortcut.Story, error)
	ListEpics(ctx context.Context) ([]shortcut.EpicSlim, error)
	UpdateEpic(ctx context.Context, id int64, params shortcut.UpdateEpicParams) (*shortcut.Epic, error)
	GetEpicWorkflow(ctx context.Context) (*shortcut.EpicWorkflow, error)
	ListMilestones(ctx context.Context) ([]shortcut.Milestone, error)
	CreateMilestone(ctx context.Context, params shortcut.CreateMilestoneParams) (*shortcut.Milestone, error)
	UpdateMilestone(ctx context.Context, id int64, params shortcut.UpdateMilestoneParams) (*shortcut.Milestone, error)
}

// Options configure a Housekeeper or a Cleaner.
type Options struct {
	// DryRun performs every read but only logs updates.
	DryRun bool

	// Workers sizes the pool used for per-story updates.
	Workers int

	// DrainTimeout bounds the wait for pooled updates.
	DrainTimeout time.Duration

	Logger *slog.Logger

	// Now overrides the clock used to compute grace-period deadlines.
	Now func() time.Time
}

func (o Options) logger(component string) *slog.Logger {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Housekeeper runs maintenance operations against one workspace.
type Housekeeper struct {
	target    Target
	opts      Options
	logger    *slog.Logger
	metrics   *telemetry.Records
	doneState shortcut.EpicState
}

// New creates a Housekeeper. The epic workflow must have a state of type
// "done".
func New(ctx context.Context, target Target, opts Options) (*Housekeeper, error) {
	wf, err := target.GetEpicWorkflow(ctx)
	if err != nil {
		return nil, err
	}
	h := &Housekeeper{
		target:  target,
		opts:    opts,
		logger:  opts.logger("housekeeping"),
		metrics: telemetry.NewRecords("housekeeping"),
	}
	found := false
	for _, s := range wf.EpicStates {
		if strings.EqualFold(s.Type, "done") {
			h.doneState = s
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("cannot find the epic finished state")
	}
	return h, nil
}

// ArchiveCompleted archives stories then epics completed more than grace
// ago.
func (h *Housekeeper) ArchiveCompleted(ctx context.Context, grace time.Duration) error {
	if err := h.ArchiveCompletedStories(ctx, grace); err != nil {
		return err
	}
	return h.ArchiveCompletedEpics(ctx, grace)
}

// ArchiveCompletedStories archives every non-archived story completed more
// than grace ago. Stories are archived concurrently; a failure is logged
// and does not stop the others.
func (h *Housekeeper) ArchiveCompletedStories(ctx context.Context, grace time.Duration) error {
	deadline := h.opts.now().Add(-grace)
	stories, err := h.target.SearchStories(ctx, shortcut.SearchStoriesParams{
		Archived:       boolPtr(false),
		CompletedAtEnd: &deadline,
	})
	if err != nil {
		return err
	}
	h.logger.Info(fmt.Sprintf("Archiving %d stories", len(stories)))

	pool := migrate.NewPool(workers(h.opts.Workers), h.logger)
	for _, story := range stories {
		if err := pool.Submit(ctx, func(ctx context.Context) {
			h.archiveStory(ctx, story)
		}); err != nil {
			h.logger.Warn("stopped submitting stories", "error", err)
			break
		}
	}
	return pool.Drain(ctx, h.opts.DrainTimeout)
}

func (h *Housekeeper) archiveStory(ctx context.Context, story shortcut.StorySlim) {
	ctx, span, start := h.metrics.Start(ctx, "archive_story", "story-"+strconv.FormatInt(story.ID, 10))
	if h.opts.DryRun {
		h.logger.Info("[dry-run] Would archive story", "story_id", story.ID, "name", story.Name)
		h.metrics.Done(ctx, span, start, telemetry.OutcomeSkipped, nil)
		return
	}
	h.logger.Info("Archiving story", "story_id", story.ID)
	_, err := h.target.UpdateStory(ctx, story.ID, &shortcut.UpdateStoryParams{Archived: boolPtr(true)})
	if err != nil {
		h.logger.Warn("Failed to archive story", "story_id", story.ID, "name", story.Name, "error", err)
		h.metrics.Done(ctx, span, start, telemetry.OutcomeFailed, err)
		return
	}
	h.metrics.Done(ctx, span, start, telemetry.OutcomeArchived, nil)
}

// ArchiveCompletedEpics archives every non-archived epic completed more than
// grace ago. A failed epic is logged and the others are still archived.
func (h *Housekeeper) ArchiveCompletedEpics(ctx context.Context, grace time.Duration) error {
	deadline := h.opts.now().Add(-grace)
	return h.archiveEpics(ctx, func(e shortcut.EpicSlim) bool {
		return e.Completed && e.CompletedAt != nil && e.CompletedAt.Before(deadline)
	})
}

// ArchiveByPrefix archives every non-archived epic whose name starts with
// prefix.
func (h *Housekeeper) ArchiveByPrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("empty epic prefix")
	}
	return h.archiveEpics(ctx, func(e shortcut.EpicSlim) bool {
		return strings.HasPrefix(e.Name, prefix)
	})
}

func (h *Housekeeper) archiveEpics(ctx context.Context, match func(shortcut.EpicSlim) bool) error {
	epics, err := h.target.ListEpics(ctx)
	if err != nil {
		return err
	}
	var selected []shortcut.EpicSlim
	for _, e := range epics {
		if !e.Archived && match(e) {
			selected = append(selected, e)
		}
	}
	h.logger.Info(fmt.Sprintf("Archiving %d epics", len(selected)))
	for _, e := range selected {
		if h.opts.DryRun {
			h.logger.Info("[dry-run] Would archive epic", "epic_id", e.ID, "name", e.Name)
			continue
		}
		h.logger.Info("Archiving epic", "epic_id", e.ID, "name", e.Name)
		if _, err := h.target.UpdateEpic(ctx, e.ID, shortcut.UpdateEpicParams{Archived: boolPtr(true)}); err != nil {
			h.logger.Warn("Failed to archive epic", "epic_id", e.ID, "name", e.Name, "error", err)
		}
	}
	return nil
}

// CloseDoneEpics moves to the finished state every open epic whose stories
// are all done.
func (h *Housekeeper) CloseDoneEpics(ctx context.Context) error {
	epics, err := h.target.ListEpics(ctx)
	if err != nil {
		return err
	}
	var selected []shortcut.EpicSlim
	for _, e := range epics {
		if !e.Archived && doneButNotCompleted(e) {
			selected = append(selected, e)
		}
	}
	h.logger.Info(fmt.Sprintf("Will close %d epics out of %d", len(selected), len(epics)))
	for _, e := range selected {
		if h.opts.DryRun {
			h.logger.Info("[dry-run] Would close epic", "epic_id", e.ID, "name", e.Name)
			continue
		}
		h.logger.Info("Closing epic", "epic_id", e.ID, "name", e.Name)
		stateID := h.doneState.ID
		if _, err := h.target.UpdateEpic(ctx, e.ID, shortcut.UpdateEpicParams{EpicStateID: &stateID}); err != nil {
			return err
		}
	}
	return nil
}

func doneButNotCompleted(e shortcut.EpicSlim) bool {
	return !e.Completed &&
		e.Stats.NumStoriesDone > 0 &&
		e.Stats.NumStoriesStarted == 0 &&
		e.Stats.NumStoriesUnstarted == 0
}

func workers(n int) int {
	if n == 0 {
		return migrate.DefaultWorkers
	}
	return n
}

func boolPtr(v bool) *bool {
	return &v
}
