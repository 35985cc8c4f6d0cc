package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dataiku/clubhouse-migration/internal/config"
	"github.com/dataiku/clubhouse-migration/internal/migrate"
	"github.com/dataiku/clubhouse-migration/internal/ui"
)

var githubCmd = &cobra.Command{
	Use:   "github",
	Short: "Migrate the issues of a GitHub repository to Shortcut stories",
	Long: `Migrate GitHub issues to Shortcut stories.

Issues already migrated (found by their external id) are skipped, so the
command can be re-run after a failure or an interruption.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()

		opts, err := migrationOptions()
		if err != nil {
			return err
		}
		target, err := newShortcutClient()
		if err != nil {
			return err
		}
		source, err := newGithubClient()
		if err != nil {
			return err
		}
		var params migrate.GithubParams
		paramsFile, _ := cmd.Flags().GetString("params")
		if err := loadParams(paramsFile, "github-migration", &params); err != nil {
			return err
		}

		m, err := migrate.NewGithubMigration(ctx, target, source, params, opts)
		if err != nil {
			return err
		}

		if issue, _ := cmd.Flags().GetInt("issue"); issue > 0 {
			err = m.MigrateIssue(ctx, issue)
		} else {
			err = m.Run(ctx, config.GetWorkers(), string(config.GetIssueState()))
		}

		counts := m.Stats()
		return printSummary(ui.Summary{
			Title:      "Github migration",
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
	githubCmd.Flags().String("repo", "", "GitHub repository as owner/name")
	githubCmd.Flags().String("project", "", "Shortcut project receiving the stories")
	githubCmd.Flags().String("state", "open", "Issues to migrate: open, closed or all")
	githubCmd.Flags().Int("workers", config.DefaultWorkers, "Concurrent migration tasks")
	githubCmd.Flags().String("params", "", "Params file (default: github-migration.{json,yaml,yml,toml})")
	githubCmd.Flags().Int("issue", 0, "Migrate only this issue number")
}
