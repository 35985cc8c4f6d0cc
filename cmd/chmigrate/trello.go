package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dataiku/clubhouse-migration/internal/config"
	"github.com/dataiku/clubhouse-migration/internal/migrate"
	"github.com/dataiku/clubhouse-migration/internal/ui"
)

var trelloCmd = &cobra.Command{
	Use:   "trello",
	Short: "Migrate the cards of a Trello organization to Shortcut stories",
	Long: `Migrate Trello cards to Shortcut stories.

Only open boards enabled in the params file are migrated. Lists map to
workflow states or labels as configured per board.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()

		opts, err := migrationOptions()
		if err != nil {
			return err
		}
		organization, err := config.Require("trello.organization")
		if err != nil {
			return err
		}
		target, err := newShortcutClient()
		if err != nil {
			return err
		}
		source, err := newTrelloClient()
		if err != nil {
			return err
		}
		var params migrate.TrelloParams
		paramsFile, _ := cmd.Flags().GetString("params")
		if err := loadParams(paramsFile, "trello-migration", &params); err != nil {
			return err
		}

		m, err := migrate.NewTrelloMigration(ctx, target, source, organization, params, opts)
		if err != nil {
			return err
		}

		if card, _ := cmd.Flags().GetString("card"); card != "" {
			err = m.MigrateCard(ctx, card)
		} else {
			err = m.Run(ctx, config.GetWorkers())
		}

		counts := m.Stats()
		return printSummary(ui.Summary{
			Title:      "Trello migration",
			DryRun:     m.DryRun(),
			Elapsed:    time.Since(start),
			Migrated:   counts.Migrated,
			Skipped:    counts.Skipped,
			Failed:     counts.Failed,
			Retried:    counts.Retried,
			Unresolved: m.Unresolved(),
			Err:        err,
		})
	},
}

func init() {
	trelloCmd.Flags().String("organization", "", "Trello organization whose boards are migrated")
	trelloCmd.Flags().String("project", "", "Shortcut project receiving the stories")
	trelloCmd.Flags().Int("workers", config.DefaultWorkers, "Concurrent migration tasks")
	trelloCmd.Flags().String("params", "", "Params file (default: trello-migration.{json,yaml,yml,toml})")
	trelloCmd.Flags().String("card", "", "Migrate only this card id")
}
