package identity

import (
	"context"

	"github.com/dataiku/clubhouse-migration/internal/github"
	"github.com/dataiku/clubhouse-migration/internal/trello"
)

// FromGitHub converts a GitHub user; nil stays nil.
func FromGitHub(u *github.User) *Person {
	if u == nil {
		return nil
	}
	return &Person{Login: u.Login, Name: u.Name, Email: u.Email}
}

// GitHubUsers looks up GitHub users by login.
type GitHubUsers interface {
	FetchUser(ctx context.Context, login string) (*github.User, error)
}

// GitHubFetcher fetches full GitHub profiles, which carry the public email.
func GitHubFetcher(c GitHubUsers) ProfileFetcher {
	return func(ctx context.Context, login string) (*Person, error) {
		u, err := c.FetchUser(ctx, login)
		if err != nil {
			return nil, err
		}
		return FromGitHub(u), nil
	}
}

// FromTrello converts a Trello member; nil stays nil. Trello does not expose
// member emails.
func FromTrello(m *trello.Member) *Person {
	if m == nil {
		return nil
	}
	return &Person{Login: m.Username, Name: m.FullName}
}

// TrelloMembers looks up Trello members by username or ID.
type TrelloMembers interface {
	Member(ctx context.Context, idOrUsername string) (*trello.Member, error)
}

// TrelloFetcher fetches Trello members by username or ID.
func TrelloFetcher(c TrelloMembers) ProfileFetcher {
	return func(ctx context.Context, login string) (*Person, error) {
		m, err := c.Member(ctx, login)
		if err != nil {
			return nil, err
		}
		return FromTrello(m), nil
	}
}
