package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dataiku/clubhouse-migration/internal/config"
	"github.com/dataiku/clubhouse-migration/internal/debug"
	"github.com/dataiku/clubhouse-migration/internal/github"
	"github.com/dataiku/clubhouse-migration/internal/migrate"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
	"github.com/dataiku/clubhouse-migration/internal/trello"
	"github.com/dataiku/clubhouse-migration/internal/ui"
)

func newShortcutClient() (*shortcut.Client, error) {
	token, err := config.Require("shortcut.token")
	if err != nil {
		return nil, err
	}
	client := shortcut.NewClient(token).WithLimiter(shortcut.NewLimiter(config.GetInt("shortcut.rate")))
	if endpoint := config.GetString("shortcut.endpoint"); endpoint != "" {
		client = client.WithEndpoint(endpoint)
	}
	return client, nil
}

func newGithubClient() (*github.Client, error) {
	token, err := config.Require("github.token")
	if err != nil {
		return nil, err
	}
	owner, name, err := config.GetGithubRepo()
	if err != nil {
		return nil, err
	}
	client := github.NewClient(token, owner, name)
	if endpoint := config.GetString("github.endpoint"); endpoint != "" {
		client = client.WithBaseURL(endpoint)
	}
	return client, nil
}

func newTrelloClient() (*trello.Client, error) {
	key, err := config.Require("trello.key")
	if err != nil {
		return nil, err
	}
	token, err := config.Require("trello.token")
	if err != nil {
		return nil, err
	}
	client := trello.NewClient(key, token)
	if endpoint := config.GetString("trello.endpoint"); endpoint != "" {
		client = client.WithBaseURL(endpoint)
	}
	return client, nil
}

func migrationOptions() (migrate.Options, error) {
	project, err := config.Require("shortcut.project")
	if err != nil {
		return migrate.Options{}, err
	}
	return migrate.Options{
		Project:      project,
		DryRun:       config.GetBool("dry-run"),
		DrainTimeout: config.GetDrainTimeout(),
		MaxAttempts:  config.GetInt("max-attempts"),
		Logger:       logger,
	}, nil
}

// loadParams decodes the params file into out. A missing params file is
// fine: every field has a usable zero value.
func loadParams(path, base string, out interface{}) error {
	found, err := config.FindParams(path, base)
	if errors.Is(err, config.ErrMissingParams) && path == "" {
		logger.Info("No params file found, using defaults", "base", base)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Loading params", "file", found)
	return config.LoadParams(found, out)
}

// printSummary writes the run report and turns failures into an error.
func printSummary(s ui.Summary) error {
	if !debug.IsQuiet() || !s.OK() {
		fmt.Fprint(os.Stdout, s.Render())
	}
	if s.Err != nil {
		return s.Err
	}
	if s.Failed > 0 {
		return fmt.Errorf("%d records failed, see %s", s.Failed, logFileHint())
	}
	return nil
}

func logFileHint() string {
	if f := config.GetString("log-file"); f != "" {
		return f
	}
	return "the log"
}
