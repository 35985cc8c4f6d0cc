package migrate

import (
	"context"
	"fmt"

	"github.com/dataiku/clubhouse-migration/internal/epics"
	"github.com/dataiku/clubhouse-migration/internal/github"
	"github.com/dataiku/clubhouse-migration/internal/identity"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

// CompletedState is the workflow state given to closed records.
const CompletedState = "Completed"

// GithubSource is the part of the GitHub API the pipeline reads.
type GithubSource interface {
	GetRepository(ctx context.Context) (*github.Repository, error)
	EachIssuePage(ctx context.Context, state string, fn func(page []github.Issue) error) error
	FetchIssueByNumber(ctx context.Context, number int) (*github.Issue, error)
	FetchComments(ctx context.Context, number int) ([]github.Comment, error)
	FetchUser(ctx context.Context, login string) (*github.User, error)
}

// GithubParams are the per-run settings read from the params file.
type GithubParams struct {
	// UsersMapping maps GitHub logins to Shortcut mention names.
	UsersMapping map[string]string `json:"usersMapping" yaml:"usersMapping" toml:"usersMapping"`
}

// GithubMigration migrates the issues of one repository into one project.
type GithubMigration struct {
	*engine
	source    GithubSource
	project   *shortcut.Project
	users     *identity.Resolver
	epics     *epics.Resolver
	transform *githubTransformer
}

// NewGithubMigration resolves everything the pipeline needs up front. An
// unknown project or a workflow without a "Completed" state is an error.
func NewGithubMigration(ctx context.Context, target Target, source GithubSource, params GithubParams, opts Options) (*GithubMigration, error) {
	e := newEngine("github", target, opts, github.IsAbuseError)

	repo, err := source.GetRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot access repository: %w", err)
	}
	e.logger.Info("Migrating from repository", "repo", repo.FullName, "private", repo.Private)

	project, err := target.FindProject(ctx, opts.Project)
	if err != nil {
		return nil, err
	}
	workflow, err := target.GetWorkflow(ctx, project.WorkflowID)
	if err != nil {
		return nil, err
	}
	completed, ok := shortcut.NewStateIndex(*workflow).ByName(CompletedState)
	if !ok {
		return nil, fmt.Errorf("workflow %q has no %q state", workflow.Name, CompletedState)
	}
	members, err := target.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	users := identity.NewResolver("github", members, params.UsersMapping, identity.GitHubFetcher(source), e.logger)
	epicResolver := epics.NewResolver(target, opts.DryRun, e.logger)
	if err := epicResolver.Load(ctx); err != nil {
		return nil, err
	}

	return &GithubMigration{
		engine:  e,
		source:  source,
		project: project,
		users:   users,
		epics:   epicResolver,
		transform: &githubTransformer{
			projectID:   project.ID,
			completedID: completed.ID,
			users:       users,
		},
	}, nil
}

// Unresolved returns the GitHub logins that matched no Shortcut member.
func (m *GithubMigration) Unresolved() []string {
	return m.users.Unresolved()
}

// Run migrates every issue in the given state ("open", "closed" or "all";
// empty means open) with the given number of workers. It blocks until all
// issues are processed, the drain timeout elapses or ctx is cancelled.
func (m *GithubMigration) Run(ctx context.Context, workers int, state string) error {
	if state == "" {
		state = github.StateOpen
	}
	if !github.IsValidState(state) {
		return fmt.Errorf("invalid issue state %q", state)
	}

	m.logger.Info("Collecting issues to migrate.", "state", state)
	seen := make(map[int]struct{})
	var issues []github.Issue
	err := m.source.EachIssuePage(ctx, state, func(page []github.Issue) error {
		for _, issue := range page {
			if _, dup := seen[issue.Number]; dup {
				continue
			}
			seen[issue.Number] = struct{}{}
			issues = append(issues, issue)
		}
		m.logger.Info(fmt.Sprintf("Found %d issues to migrate.", len(issues)))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list issues: %w", err)
	}

	m.logger.Info("Migrating the Github issues.", "workers", workers)
	jobs := make([]func(ctx context.Context), 0, len(issues))
	for i := range issues {
		issue := issues[i]
		jobs = append(jobs, func(ctx context.Context) {
			_ = m.migrateIssue(ctx, &issue)
		})
	}
	return m.drain(ctx, workers, jobs)
}

// MigrateIssue migrates a single issue. Pull requests are rejected.
func (m *GithubMigration) MigrateIssue(ctx context.Context, number int) error {
	issue, err := m.source.FetchIssueByNumber(ctx, number)
	if err != nil {
		return err
	}
	if issue.IsPullRequest() {
		return fmt.Errorf("cannot migrate pull requests but issue #%d is a PR", number)
	}
	return m.migrateIssue(ctx, issue)
}

func (m *GithubMigration) migrateIssue(ctx context.Context, issue *github.Issue) error {
	label := fmt.Sprintf("issue #%d", issue.Number)
	return m.migrateRecord(ctx, GithubMarker(issue.Number), label, func(ctx context.Context) (*shortcut.Story, error) {
		comments, err := m.source.FetchComments(ctx, issue.Number)
		if err != nil {
			return nil, err
		}

		var epicID *int64
		epic, err := m.epics.GetOrCreate(ctx, GithubEpicName(issue))
		if err != nil {
			return nil, err
		}
		if epic != nil {
			epicID = int64Ptr(epic.ID)
		}

		params := m.transform.Story(ctx, issue, comments, epicID)
		if m.opts.DryRun {
			return nil, nil
		}
		return m.target.CreateStory(ctx, params)
	})
}
