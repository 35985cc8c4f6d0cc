package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/dataiku/clubhouse-migration/internal/config"
	"github.com/dataiku/clubhouse-migration/internal/housekeeping"
	"github.com/dataiku/clubhouse-migration/internal/ui"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every story, epic, milestone and label of the workspace",
	Long: `Empty the Shortcut workspace so a migration can be replayed from scratch.

This cannot be undone. Pass --yes to confirm, or --dry-run to list what
would be deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun := config.GetBool("dry-run")
		if yes, _ := cmd.Flags().GetBool("yes"); !yes && !dryRun {
			return errors.New("refusing to delete the workspace without --yes")
		}

		client, err := newShortcutClient()
		if err != nil {
			return err
		}
		start := time.Now()
		cleaner := housekeeping.NewCleaner(client, housekeeping.Options{
			DryRun:       dryRun,
			Workers:      config.GetWorkers(),
			DrainTimeout: config.GetDrainTimeout(),
			Logger:       logger,
		})
		var steps []string
		err = cleaner.Run(cmd.Context())
		if err == nil {
			steps = []string{"deleted labels, epics, milestones and stories"}
		}
		return printSummary(ui.Summary{
			Title:   "Clean",
			DryRun:  dryRun,
			Steps:   steps,
			Err:     err,
			Elapsed: time.Since(start),
		})
	},
}

func init() {
	cleanCmd.Flags().Bool("yes", false, "Confirm deletion of the whole workspace")
	cleanCmd.Flags().Int("workers", config.DefaultWorkers, "Concurrent delete tasks")
}
