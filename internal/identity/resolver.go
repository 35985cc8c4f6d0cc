// Package identity maps users of a source tracker onto Shortcut members.
//
// A Resolver matches a source user against the workspace members by email,
// then by login or display name against mention names and member names,
// then through a manual login -> mention name table. Results are memoized
// for the lifetime of the resolver, so a user resolves the same way for the
// whole run even if their profile changes meanwhile.
package identity

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

// Person is a source-system user as far as matching is concerned.
type Person struct {
	Login string
	Name  string
	Email string
}

// ProfileFetcher loads the full profile of a source user. It is called on a
// cache miss, so it may hit the network.
type ProfileFetcher func(ctx context.Context, login string) (*Person, error)

// Match is the result of resolving a user. The zero value means the user has
// no Shortcut counterpart.
type Match struct {
	Member *shortcut.Member
}

// Found reports whether a member was matched.
func (m Match) Found() bool {
	return m.Member != nil
}

// ID returns the matched member ID, or nil when the user is unresolved.
func (m Match) ID() *uuid.UUID {
	if m.Member == nil {
		return nil
	}
	id := m.Member.ID
	return &id
}

// Resolver resolves source users to Shortcut members. It is safe for
// concurrent use.
type Resolver struct {
	source    string
	members   []shortcut.Member
	overrides map[string]string
	fetch     ProfileFetcher
	logger    *slog.Logger

	mu         sync.Mutex
	matches    map[string]Match
	names      map[string]string
	unresolved map[string]struct{}
	group      singleflight.Group
}

// NewResolver creates a resolver for users of the named source system.
// overrides maps source logins to Shortcut mention names; fetch may be nil.
func NewResolver(source string, members []shortcut.Member, overrides map[string]string, fetch ProfileFetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		source:     source,
		members:    append([]shortcut.Member(nil), members...),
		overrides:  make(map[string]string, len(overrides)),
		fetch:      fetch,
		logger:     logger,
		matches:    make(map[string]Match),
		names:      make(map[string]string),
		unresolved: make(map[string]struct{}),
	}
	for login, mention := range overrides {
		r.overrides[strings.ToLower(login)] = mention
	}
	return r
}

// Resolve maps p to a Shortcut member. A nil person or one without a login
// is unresolved. Concurrent calls for the same login share one lookup.
func (r *Resolver) Resolve(ctx context.Context, p *Person) Match {
	if p == nil || p.Login == "" {
		return Match{}
	}
	key := strings.ToLower(p.Login)

	r.mu.Lock()
	m, ok := r.matches[key]
	r.mu.Unlock()
	if ok {
		return m
	}

	v, _, _ := r.group.Do("member:"+key, func() (interface{}, error) {
		r.mu.Lock()
		if m, ok := r.matches[key]; ok {
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()

		m, details := r.lookup(ctx, *p)

		r.mu.Lock()
		r.matches[key] = m
		if !m.Found() {
			r.unresolved[details.Login] = struct{}{}
		}
		r.mu.Unlock()
		return m, nil
	})
	return v.(Match)
}

// ResolveLogin resolves a user known only by login or ID.
func (r *Resolver) ResolveLogin(ctx context.Context, login string) Match {
	return r.Resolve(ctx, &Person{Login: login})
}

// lookup matches p, fetching the full source profile on a miss. It also
// returns the most complete profile it saw.
func (r *Resolver) lookup(ctx context.Context, p Person) (Match, Person) {
	if m := r.match(p); m.Found() {
		return m, p
	}

	details := p
	if r.fetch != nil {
		fetched, err := r.fetch(ctx, p.Login)
		if err != nil {
			r.logger.Debug("failed to fetch user profile", "source", r.source, "login", p.Login, "error", err)
		} else if fetched != nil {
			details = merge(p, *fetched)
			if m := r.match(details); m.Found() {
				return m, details
			}
		}
	}

	r.logger.Warn("missing user mapping",
		"source", r.source,
		"login", details.Login,
		"name", details.Name,
		"email", details.Email)
	return Match{}, details
}

// match applies the matching rules in order of precedence.
func (r *Resolver) match(p Person) Match {
	if p.Email != "" {
		for i := range r.members {
			if equalFold(p.Email, r.members[i].Email()) {
				return Match{Member: &r.members[i]}
			}
		}
	}
	for i := range r.members {
		mention := r.members[i].Profile.MentionName
		if equalFold(p.Login, mention) || equalFold(p.Name, mention) {
			return Match{Member: &r.members[i]}
		}
	}
	for i := range r.members {
		name := r.members[i].Profile.Name
		if equalFold(p.Login, name) || equalFold(p.Name, name) {
			return Match{Member: &r.members[i]}
		}
	}
	if mention, ok := r.overrides[strings.ToLower(p.Login)]; ok {
		for i := range r.members {
			if equalFold(mention, r.members[i].Profile.MentionName) {
				return Match{Member: &r.members[i]}
			}
		}
	}
	return Match{}
}

// DisplayName returns a human readable name for p: its name when known,
// otherwise the name from the source profile, otherwise the login.
func (r *Resolver) DisplayName(ctx context.Context, p *Person) string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return r.DisplayNameForLogin(ctx, p.Login)
}

// DisplayNameForLogin returns the display name of a login. Names are cached
// per login separately from member matches.
func (r *Resolver) DisplayNameForLogin(ctx context.Context, login string) string {
	if login == "" {
		return ""
	}

	r.mu.Lock()
	name, ok := r.names[login]
	r.mu.Unlock()
	if ok {
		return name
	}

	v, _, _ := r.group.Do("name:"+login, func() (interface{}, error) {
		name := login
		if r.fetch != nil {
			if fetched, err := r.fetch(ctx, login); err == nil && fetched != nil {
				switch {
				case fetched.Name != "":
					name = fetched.Name
				case fetched.Login != "":
					name = fetched.Login
				}
			}
		}
		r.mu.Lock()
		r.names[login] = name
		r.mu.Unlock()
		return name, nil
	})
	return v.(string)
}

// Unresolved returns the sorted logins that matched no member so far.
func (r *Resolver) Unresolved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.unresolved))
	for login := range r.unresolved {
		out = append(out, login)
	}
	sort.Strings(out)
	return out
}

// merge overlays the non-empty fields of fetched onto p.
func merge(p, fetched Person) Person {
	if fetched.Login != "" {
		p.Login = fetched.Login
	}
	if fetched.Name != "" {
		p.Name = fetched.Name
	}
	if fetched.Email != "" {
		p.Email = fetched.Email
	}
	return p
}

func equalFold(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
