package migrate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dataiku/clubhouse-migration/internal/github"
	"github.com/dataiku/clubhouse-migration/internal/identity"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

// Users resolves source users to Shortcut members.
type Users interface {
	Resolve(ctx context.Context, p *identity.Person) identity.Match
	ResolveLogin(ctx context.Context, login string) identity.Match
	DisplayName(ctx context.Context, p *identity.Person) string
	DisplayNameForLogin(ctx context.Context, login string) string
}

// versionMilestone matches milestone titles such as "V 4.2.0".
var versionMilestone = regexp.MustCompile(`^V\s[0-9]+\..*$`)

// GithubMarker is the external-id marker of a GitHub issue.
func GithubMarker(number int) string {
	return fmt.Sprintf("github-%d", number)
}

// GithubEpicName derives the epic name from the issue milestone, or "" when
// the issue has none. Version milestones "V x.y.z" become "x.y.z Enhancements".
func GithubEpicName(issue *github.Issue) string {
	if issue.Milestone == nil || issue.Milestone.Title == "" {
		return ""
	}
	title := issue.Milestone.Title
	if versionMilestone.MatchString(title) {
		return title[2:] + " Enhancements"
	}
	return title
}

// githubTransformer builds story payloads from GitHub issues.
type githubTransformer struct {
	projectID   int64
	completedID int64
	users       Users
}

// Story converts an issue and its comments into a story payload.
func (t *githubTransformer) Story(ctx context.Context, issue *github.Issue, comments []github.Comment, epicID *int64) *shortcut.CreateStoryParams {
	marker := GithubMarker(issue.Number)
	notes := []string{
		fmt.Sprintf("* This card has been imported from Github issue [#%d](%s)", issue.Number, issue.HTMLURL),
	}

	params := &shortcut.CreateStoryParams{
		Name:      issue.Title,
		ProjectID: t.projectID,
		StoryType: "bug",
		CreatedAt: issue.CreatedAt,
		UpdatedAt: issue.UpdatedAt,
		EpicID:    epicID,
		Labels:    githubLabels(issue.Labels),
		Comments:  t.comments(ctx, comments),
	}

	if issue.State == github.StateClosed {
		params.WorkflowStateID = int64Ptr(t.completedID)
	}
	if issue.ClosedAt != nil {
		params.CompletedAtOverride = issue.ClosedAt
	}

	reporter := identity.FromGitHub(issue.User)
	if m := t.users.Resolve(ctx, reporter); m.Found() {
		params.RequestedByID = m.ID()
	} else if reporter != nil {
		notes = append(notes, fmt.Sprintf("* Originally reported by **%s**", t.users.DisplayName(ctx, reporter)))
	}
	if m := t.users.Resolve(ctx, identity.FromGitHub(issue.Assignee)); m.Found() {
		params.OwnerIDs = []uuid.UUID{*m.ID()}
	}

	params.ExternalID = marker
	params.ExternalTickets = []shortcut.CreateExternalTicketParams{
		{ExternalID: marker, ExternalURL: issue.HTMLURL},
	}
	params.Description = RewriteImages(issue.Body) + Footer(notes)
	return params
}

func (t *githubTransformer) comments(ctx context.Context, comments []github.Comment) []shortcut.CreateCommentParams {
	sorted := append([]github.Comment(nil), comments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].CreatedAt, sorted[j].CreatedAt
		return a != nil && b != nil && a.Before(*b)
	})

	result := make([]shortcut.CreateCommentParams, 0, len(sorted))
	for _, c := range sorted {
		result = append(result, shortcut.CreateCommentParams{
			AuthorID:  t.users.Resolve(ctx, identity.FromGitHub(c.User)).ID(),
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
			Text:      RewriteImages(c.Body),
		})
	}
	return result
}

func githubLabels(labels []github.Label) []shortcut.CreateLabelParams {
	result := make([]shortcut.CreateLabelParams, 0, len(labels))
	for _, l := range labels {
		result = append(result, shortcut.CreateLabelParams{Name: l.Name, Color: hexColor(l.Color)})
	}
	return result
}

// hexColor prefixes bare hex colors with '#'.
func hexColor(color string) string {
	if color == "" || strings.HasPrefix(color, "#") {
		return color
	}
	return "#" + color
}
