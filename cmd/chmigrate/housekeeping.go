package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dataiku/clubhouse-migration/internal/config"
	"github.com/dataiku/clubhouse-migration/internal/housekeeping"
	"github.com/dataiku/clubhouse-migration/internal/timeparsing"
	"github.com/dataiku/clubhouse-migration/internal/ui"
)

// housekeepingOps are the flags selecting an operation. With none of them
// set, the command archives, closes and reconciles.
var housekeepingOps = []string{"archive-completed", "close-done-epics", "milestones", "archive-prefix"}

var housekeepingCmd = &cobra.Command{
	Use:   "housekeeping",
	Short: "Archive finished work, close done epics and order milestones",
	Long: `Keep a Shortcut workspace tidy.

With no operation flag, runs the full routine: archive stories and epics
completed more than 30 days ago, close epics whose stories are all done, and
attach release epics to ordered milestones.

Grace periods accept Go durations (720h), compact durations (30d, 2w, 3m),
dates (2024-01-31) and natural language (last monday).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()

		all := true
		for _, name := range housekeepingOps {
			if cmd.Flags().Changed(name) {
				all = false
			}
		}

		var grace time.Duration
		archive := all || cmd.Flags().Changed("archive-completed")
		if archive {
			expr, _ := cmd.Flags().GetString("archive-completed")
			d, err := timeparsing.ParseGracePeriod(expr, start)
			if err != nil {
				return fmt.Errorf("invalid --archive-completed: %w", err)
			}
			grace = d
		}

		client, err := newShortcutClient()
		if err != nil {
			return err
		}
		dryRun := config.GetBool("dry-run")
		h, err := housekeeping.New(ctx, client, housekeeping.Options{
			DryRun:       dryRun,
			Workers:      config.GetWorkers(),
			DrainTimeout: config.GetDrainTimeout(),
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		var steps []string
		run := func() error {
			if archive {
				logger.Info("Archiving work completed before the grace period", "grace", grace.String())
				if err := h.ArchiveCompleted(ctx, grace); err != nil {
					return err
				}
				steps = append(steps, "archived work completed more than "+grace.String()+" ago")
			}
			if closeDone, _ := cmd.Flags().GetBool("close-done-epics"); all || closeDone {
				if err := h.CloseDoneEpics(ctx); err != nil {
					return err
				}
				steps = append(steps, "closed done epics")
			}
			if milestones, _ := cmd.Flags().GetBool("milestones"); all || milestones {
				pattern, _ := cmd.Flags().GetString("milestone-pattern")
				if err := h.ReconcileMilestones(ctx, pattern); err != nil {
					return err
				}
				steps = append(steps, "reconciled milestones")
			}
			prefixes, _ := cmd.Flags().GetStringArray("archive-prefix")
			for _, prefix := range prefixes {
				if err := h.ArchiveByPrefix(ctx, prefix); err != nil {
					return err
				}
				steps = append(steps, "archived epics prefixed "+prefix)
			}
			return nil
		}

		err = run()
		return printSummary(ui.Summary{
			Title:   "Housekeeping",
			DryRun:  dryRun,
			Steps:   steps,
			Err:     err,
			Elapsed: time.Since(start),
		})
	},
}

func init() {
	f := housekeepingCmd.Flags()
	f.String("archive-completed", "30d", "Archive stories and epics completed longer ago than this")
	f.Bool("close-done-epics", false, "Move epics whose stories are all done to the done state")
	f.Bool("milestones", false, "Attach release epics to milestones and order them")
	f.String("milestone-pattern", housekeeping.DefaultReleasePattern, "Regular expression matching release epic names")
	f.StringArray("archive-prefix", nil, "Archive epics whose name starts with this prefix (repeatable)")
	f.Int("workers", config.DefaultWorkers, "Concurrent archive tasks")
}
