package migrate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataiku/clubhouse-migration/internal/github"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

const issue42JSON = `{
  "id": 1042, "number": 42, "title": "Export fails on large datasets",
  "body": "Steps:\n<img width=\"836\" alt=\"export error\" src=\"https://user-images.githubusercontent.com/1/export.png\">",
  "state": "closed",
  "created_at": "2018-04-25T10:00:00Z", "updated_at": "2018-04-27T10:00:00Z", "closed_at": "2018-04-27T09:00:00Z",
  "labels": [{"id": 1, "name": "bug", "color": "d73a4a"}, {"id": 2, "name": "ui", "color": "#00ff00"}],
  "user": {"id": 7, "login": "alice"},
  "assignee": {"id": 8, "login": "bob"},
  "milestone": {"id": 3, "number": 3, "title": "V 4.2.0", "state": "closed"},
  "html_url": "https://github.com/dataiku/dip/issues/42",
  "comments": 1
}`

const pull43JSON = `{
  "id": 1043, "number": 43, "title": "Bump deps", "state": "closed",
  "html_url": "https://github.com/dataiku/dip/pull/43",
  "pull_request": {"url": "https://api.github.com/repos/dataiku/dip/pulls/43", "html_url": "https://github.com/dataiku/dip/pull/43"}
}`

const commentsJSON = `[
  {"id": 555, "body": "Same here <img src=\"https://example.com/shots/trace.png\">", "user": {"id": 9, "login": "stranger"},
   "created_at": "2018-04-26T10:00:00Z", "updated_at": "2018-04-26T11:00:00Z"}
]`

// fakeGithub serves one repository. commentFailures makes the first N
// comment requests fail with GitHub's abuse error. hidden makes the
// repository itself answer 404.
type fakeGithub struct {
	commentFailures int32
	commentCalls    atomic.Int32
	hidden          bool
}

func (f *fakeGithub) client(t *testing.T) *github.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.hidden {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "Not Found"}`))
			return
		}
		switch r.URL.Path {
		case "/repos/dataiku/dip":
			_, _ = w.Write([]byte(`{"id": 1, "name": "dip", "full_name": "dataiku/dip", "private": true}`))
		case "/repos/dataiku/dip/issues":
			_, _ = w.Write([]byte("[" + issue42JSON + "," + pull43JSON + "]"))
		case "/repos/dataiku/dip/issues/42":
			_, _ = w.Write([]byte(issue42JSON))
		case "/repos/dataiku/dip/issues/43":
			_, _ = w.Write([]byte(pull43JSON))
		case "/repos/dataiku/dip/issues/42/comments":
			if f.commentCalls.Add(1) <= f.commentFailures {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"message": "You have triggered an abuse detection mechanism."}`))
				return
			}
			_, _ = w.Write([]byte(commentsJSON))
		case "/users/alice":
			_, _ = w.Write([]byte(`{"login": "alice", "name": "Alice Martin"}`))
		case "/users/stranger":
			_, _ = w.Write([]byte(`{"login": "stranger", "name": "Some Stranger"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "Not Found"}`))
		}
	}))
	t.Cleanup(server.Close)
	return github.NewClient("gh-token", "dataiku", "dip").WithBaseURL(server.URL)
}

func newGithubMigration(t *testing.T, target *fakeShortcut, source *fakeGithub, dryRun bool) *GithubMigration {
	t.Helper()
	m, err := NewGithubMigration(context.Background(), target.client(t), source.client(t), GithubParams{},
		Options{Project: "DSS", DryRun: dryRun, Logger: discardLogger()})
	require.NoError(t, err)
	return m
}

func TestGithubMigrationEndToEnd(t *testing.T) {
	target := newFakeShortcut()
	source := &fakeGithub{}

	m := newGithubMigration(t, target, source, false)
	require.NoError(t, m.Run(context.Background(), 4, github.StateClosed))

	stories := target.storyList()
	require.Len(t, stories, 1, "pull requests are not migrated")
	story := stories[0]

	assert.Equal(t, "Export fails on large datasets", story.Name)
	assert.Equal(t, "bug", story.StoryType)
	assert.Equal(t, int64(10), story.ProjectID)
	require.NotNil(t, story.WorkflowStateID)
	assert.Equal(t, int64(500004), *story.WorkflowStateID)
	require.NotNil(t, story.CompletedAtOverride)
	assert.True(t, story.CompletedAtOverride.Equal(time.Date(2018, 4, 27, 9, 0, 0, 0, time.UTC)))

	assert.Equal(t, []shortcut.CreateLabelParams{
		{Name: "bug", Color: "#d73a4a"},
		{Name: "ui", Color: "#00ff00"},
	}, story.Labels)

	require.NotNil(t, story.RequestedByID)
	assert.Equal(t, "aaaaaaaa-0000-0000-0000-000000000001", story.RequestedByID.String())
	require.Len(t, story.OwnerIDs, 1)
	assert.Equal(t, "aaaaaaaa-0000-0000-0000-000000000002", story.OwnerIDs[0].String())

	require.Len(t, story.Comments, 1)
	assert.Nil(t, story.Comments[0].AuthorID)
	assert.Equal(t, "Same here ![trace.png](https://example.com/shots/trace.png)", story.Comments[0].Text)

	assert.Equal(t, "github-42", story.ExternalID)
	assert.Equal(t, []shortcut.CreateExternalTicketParams{
		{ExternalID: "github-42", ExternalURL: "https://github.com/dataiku/dip/issues/42"},
	}, story.ExternalTickets)

	assert.True(t, strings.HasPrefix(story.Description, "Steps:\n![export error](https://user-images.githubusercontent.com/1/export.png)"))
	assert.Contains(t, story.Description, "* This card has been imported from Github issue [#42](https://github.com/dataiku/dip/issues/42)")
	assert.NotContains(t, story.Description, "Originally reported by")

	require.NotNil(t, story.EpicID)
	require.Len(t, target.epics, 1)
	assert.Equal(t, "4.2.0 Enhancements", target.epics[0].Name)
	assert.Equal(t, target.epics[0].ID, *story.EpicID)

	assert.Equal(t, Counts{Migrated: 1}, m.Stats())
	assert.Equal(t, []string{"stranger"}, m.Unresolved())

	// A second run finds the marker and creates nothing.
	again := newGithubMigration(t, target, source, false)
	require.NoError(t, again.Run(context.Background(), 4, github.StateClosed))
	assert.Len(t, target.storyList(), 1)
	assert.Equal(t, Counts{Skipped: 1}, again.Stats())
}

func TestGithubMigrationDryRun(t *testing.T) {
	target := newFakeShortcut()
	m := newGithubMigration(t, target, &fakeGithub{}, true)

	require.NoError(t, m.Run(context.Background(), 2, github.StateAll))

	assert.Empty(t, target.storyList())
	assert.Empty(t, target.epics)
	assert.Equal(t, 1, target.searches, "dry run still searches for the marker")
	assert.Equal(t, Counts{Migrated: 1}, m.Stats())
}

func TestGithubMigrationRetriesAbuseErrors(t *testing.T) {
	target := newFakeShortcut()
	source := &fakeGithub{commentFailures: 2}
	m := newGithubMigration(t, target, source, false)

	var delays []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	require.NoError(t, m.MigrateIssue(context.Background(), 42))

	assert.Len(t, target.storyList(), 1)
	assert.Equal(t, Counts{Migrated: 1, Retried: 2}, m.Stats())
	require.Len(t, delays, 2)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, MinCoolDown)
		assert.LessOrEqual(t, d, MaxCoolDown)
	}
	assert.Equal(t, 3, target.searches, "every attempt searches again")
}

func TestGithubMigrateIssueRejectsPullRequests(t *testing.T) {
	m := newGithubMigration(t, newFakeShortcut(), &fakeGithub{}, false)

	err := m.MigrateIssue(context.Background(), 43)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a PR")
}

func TestGithubMigrationSetupErrors(t *testing.T) {
	t.Run("unknown project", func(t *testing.T) {
		_, err := NewGithubMigration(context.Background(), newFakeShortcut().client(t), (&fakeGithub{}).client(t), GithubParams{},
			Options{Project: "Nope", Logger: discardLogger()})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shortcut.ErrNotFound))
	})

	t.Run("missing completed state", func(t *testing.T) {
		target := newFakeShortcut()
		target.workflow.States = target.workflow.States[:3]
		_, err := NewGithubMigration(context.Background(), target.client(t), (&fakeGithub{}).client(t), GithubParams{},
			Options{Project: "DSS", Logger: discardLogger()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"Completed"`)
	})

	t.Run("inaccessible repository", func(t *testing.T) {
		target := newFakeShortcut()
		_, err := NewGithubMigration(context.Background(), target.client(t), (&fakeGithub{hidden: true}).client(t), GithubParams{},
			Options{Project: "DSS", Logger: discardLogger()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot access repository")
		var apiErr *github.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Zero(t, target.searches)
	})
}

func TestGithubMigrationRejectsInvalidState(t *testing.T) {
	m := newGithubMigration(t, newFakeShortcut(), &fakeGithub{}, false)

	err := m.Run(context.Background(), 1, "merged")
	assert.Error(t, err)
}

func TestGithubEpicName(t *testing.T) {
	tests := []struct {
		milestone *github.Milestone
		want      string
	}{
		{nil, ""},
		{&github.Milestone{Title: "V 4.2.0"}, "4.2.0 Enhancements"},
		{&github.Milestone{Title: "V 10.0.1-beta"}, "10.0.1-beta Enhancements"},
		{&github.Milestone{Title: "Version 4"}, "Version 4"},
		{&github.Milestone{Title: "Backlog"}, "Backlog"},
	}
	for _, tt := range tests {
		got := GithubEpicName(&github.Issue{Milestone: tt.milestone})
		assert.Equal(t, tt.want, got)
	}
}

func TestGithubStoryReporterFallback(t *testing.T) {
	users := &stubUsers{names: map[string]string{"ghost": "Casper Ghost"}}
	tr := &githubTransformer{projectID: 1, completedID: 2, users: users}
	issue := &github.Issue{
		Number:  7,
		Title:   "Open issue",
		State:   github.StateOpen,
		HTMLURL: "https://github.com/dataiku/dip/issues/7",
		User:    &github.User{Login: "ghost"},
	}

	params := tr.Story(context.Background(), issue, nil, nil)

	assert.Nil(t, params.WorkflowStateID)
	assert.Nil(t, params.CompletedAtOverride)
	assert.Nil(t, params.RequestedByID)
	assert.Empty(t, params.OwnerIDs)
	assert.Equal(t, Footer([]string{
		"* This card has been imported from Github issue [#7](https://github.com/dataiku/dip/issues/7)",
		"* Originally reported by **Casper Ghost**",
	}), params.Description)
}
