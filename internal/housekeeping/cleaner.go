package housekeeping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dataiku/clubhouse-migration/internal/migrate"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

// CleanTarget is the part of the Shortcut API the Cleaner uses.
type CleanTarget interface {
	ListLabels(ctx context.Context) ([]shortcut.Label, error)
	DeleteLabel(ctx context.Context, id int64) error
	ListEpics(ctx context.Context) ([]shortcut.EpicSlim, error)
	DeleteEpic(ctx context.Context, id int64) error
	ListMilestones(ctx context.Context) ([]shortcut.Milestone, error)
	DeleteMilestone(ctx context.Context, id int64) error
	SearchStories(ctx context.Context, params shortcut.SearchStoriesParams) ([]shortcut.StorySlim, error)
	UpdateStories(ctx context.Context, params shortcut.UpdateStoriesParams) error
	DeleteStories(ctx context.Context, ids []int64) error
}

// Cleaner empties a workspace: it deletes every label, epic, milestone and
// story. It exists to reset a test workspace between migration attempts.
type Cleaner struct {
	target CleanTarget
	opts   Options
	logger *slog.Logger
}

// NewCleaner creates a Cleaner.
func NewCleaner(target CleanTarget, opts Options) *Cleaner {
	return &Cleaner{
		target: target,
		opts:   opts,
		logger: opts.logger("cleaner"),
	}
}

// Run deletes everything. Individual deletions that fail are logged and do
// not stop the run; listing failures do.
func (c *Cleaner) Run(ctx context.Context) error {
	pool := migrate.NewPool(workers(c.opts.Workers), c.logger)

	c.logger.Info("Deleting labels...")
	labels, err := c.target.ListLabels(ctx)
	if err != nil {
		return err
	}
	for _, l := range labels {
		c.submit(ctx, pool, "label", l.ID, l.Name, c.target.DeleteLabel)
	}

	c.logger.Info("Deleting epics...")
	epics, err := c.target.ListEpics(ctx)
	if err != nil {
		return err
	}
	for _, e := range epics {
		c.submit(ctx, pool, "epic", e.ID, e.Name, c.target.DeleteEpic)
	}

	c.logger.Info("Deleting milestones...")
	milestones, err := c.target.ListMilestones(ctx)
	if err != nil {
		return err
	}
	for _, m := range milestones {
		c.submit(ctx, pool, "milestone", m.ID, m.Name, c.target.DeleteMilestone)
	}

	c.logger.Info("Deleting stories...")
	storiesErr := make(chan error, 1)
	if err := pool.Submit(ctx, func(ctx context.Context) {
		storiesErr <- c.deleteStories(ctx)
	}); err != nil {
		storiesErr <- err
	}

	c.logger.Info("Waiting for completion of remaining tasks...")
	if err := pool.Drain(ctx, c.opts.DrainTimeout); err != nil {
		return err
	}
	if err := <-storiesErr; err != nil {
		c.logger.Warn("Error while deleting stories", "error", err)
		return err
	}
	c.logger.Info("Done.")
	return nil
}

func (c *Cleaner) submit(ctx context.Context, pool *migrate.Pool, kind string, id int64, name string, del func(context.Context, int64) error) {
	err := pool.Submit(ctx, func(ctx context.Context) {
		if c.opts.DryRun {
			c.logger.Info(fmt.Sprintf("[dry-run] Would delete %s %d > %s", kind, id, name))
			return
		}
		c.logger.Info(fmt.Sprintf("Deleting %s %d > %s", kind, id, name))
		if err := del(ctx, id); err != nil {
			c.logger.Warn(fmt.Sprintf("Failed to delete %s %d > %s", kind, id, name), "error", err)
		}
	})
	if err != nil {
		c.logger.Warn("stopped submitting deletions", "error", err)
	}
}

// deleteStories archives the live stories in bulk, then deletes every
// archived story in bulk. Stories must be archived before Shortcut lets
// them be deleted.
func (c *Cleaner) deleteStories(ctx context.Context) error {
	live, err := c.target.SearchStories(ctx, shortcut.SearchStoriesParams{Archived: boolPtr(false)})
	if err != nil {
		return err
	}
	if len(live) > 0 {
		c.logger.Info(fmt.Sprintf("Archiving %d stories", len(live)))
		if !c.opts.DryRun {
			if err := c.target.UpdateStories(ctx, shortcut.UpdateStoriesParams{
				StoryIDs: storyIDs(live),
				Archived: boolPtr(true),
			}); err != nil {
				return err
			}
		}
	}

	archived, err := c.target.SearchStories(ctx, shortcut.SearchStoriesParams{Archived: boolPtr(true)})
	if err != nil {
		return err
	}
	if len(archived) > 0 {
		c.logger.Info(fmt.Sprintf("Deleting %d stories", len(archived)))
		if !c.opts.DryRun {
			return c.target.DeleteStories(ctx, storyIDs(archived))
		}
	}
	return nil
}

func storyIDs(stories []shortcut.StorySlim) []int64 {
	ids := make([]int64, len(stories))
	for i, s := range stories {
		ids[i] = s.ID
	}
	return ids
}
