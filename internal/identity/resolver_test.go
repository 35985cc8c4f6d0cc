package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

var (
	aliceID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	bobID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	carolID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func strPtr(s string) *string { return &s }

func testMembers() []shortcut.Member {
	return []shortcut.Member{
		{ID: aliceID, Profile: shortcut.Profile{MentionName: "alice", Name: "Alice Martin", EmailAddress: strPtr("Alice@Example.com")}},
		{ID: bobID, Profile: shortcut.Profile{MentionName: "bobby", Name: "Bob Stone"}},
		{ID: carolID, Profile: shortcut.Profile{MentionName: "carol.w", Name: "Carol White"}},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveOrder(t *testing.T) {
	r := NewResolver("github", testMembers(), map[string]string{"CWhite": "carol.w"}, nil, quietLogger())
	ctx := context.Background()

	tests := []struct {
		name   string
		person *Person
		want   *uuid.UUID
	}{
		{"email case-insensitive", &Person{Login: "a-m", Email: "alice@example.COM"}, &aliceID},
		{"login vs mention name", &Person{Login: "BOBBY"}, &bobID},
		{"display name vs member name", &Person{Login: "bstone", Name: "bob stone"}, &bobID},
		{"login vs member name", &Person{Login: "Carol White"}, &carolID},
		{"manual override", &Person{Login: "cwhite"}, &carolID},
		{"unknown", &Person{Login: "mallory", Name: "Mallory"}, nil},
		{"nil person", nil, nil},
		{"empty login", &Person{Name: "Alice Martin"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := r.Resolve(ctx, tt.person)
			if tt.want == nil {
				assert.False(t, m.Found())
				assert.Nil(t, m.ID())
				return
			}
			require.True(t, m.Found())
			assert.Equal(t, *tt.want, *m.ID())
		})
	}
}

func TestResolveEmailTakesPrecedence(t *testing.T) {
	// Login matches bob's mention name but the email belongs to alice.
	r := NewResolver("github", testMembers(), nil, nil, quietLogger())

	m := r.Resolve(context.Background(), &Person{Login: "bobby", Email: "alice@example.com"})

	require.True(t, m.Found())
	assert.Equal(t, aliceID, *m.ID())
}

func TestResolveIsStableWithinRun(t *testing.T) {
	profiles := map[string]*Person{"ghost": {Login: "ghost", Name: "Ghost"}}
	var mu sync.Mutex
	fetch := func(ctx context.Context, login string) (*Person, error) {
		mu.Lock()
		defer mu.Unlock()
		return profiles[login], nil
	}
	r := NewResolver("github", testMembers(), nil, fetch, quietLogger())
	ctx := context.Background()

	first := r.Resolve(ctx, &Person{Login: "ghost"})
	assert.False(t, first.Found())

	// The source profile changes mid-run; the cached answer must not.
	mu.Lock()
	profiles["ghost"] = &Person{Login: "ghost", Email: "alice@example.com"}
	mu.Unlock()

	second := r.Resolve(ctx, &Person{Login: "ghost"})
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"ghost"}, r.Unresolved())
}

func TestResolveFetchesProfileOnMiss(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, login string) (*Person, error) {
		atomic.AddInt32(&calls, 1)
		return &Person{Login: login, Name: "Alice Martin", Email: "alice@example.com"}, nil
	}
	r := NewResolver("github", testMembers(), nil, fetch, quietLogger())

	m := r.Resolve(context.Background(), &Person{Login: "amartin"})

	require.True(t, m.Found())
	assert.Equal(t, aliceID, *m.ID())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResolveFetchErrorDegradesToUnresolved(t *testing.T) {
	fetch := func(ctx context.Context, login string) (*Person, error) {
		return nil, errors.New("boom")
	}
	r := NewResolver("trello", testMembers(), nil, fetch, quietLogger())

	m := r.Resolve(context.Background(), &Person{Login: "nobody"})

	assert.False(t, m.Found())
	assert.Equal(t, []string{"nobody"}, r.Unresolved())
}

func TestResolveConcurrentMissesShareOneFetch(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, login string) (*Person, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Person{Login: login}, nil
	}
	r := NewResolver("github", testMembers(), nil, fetch, quietLogger())

	const workers = 16
	var wg sync.WaitGroup
	results := make([]Match, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), &Person{Login: "stranger"})
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, m := range results {
		assert.False(t, m.Found())
	}
}

func TestResolveLoginUsesFetchedUsername(t *testing.T) {
	// Trello card members are referenced by ID only.
	fetch := func(ctx context.Context, login string) (*Person, error) {
		if login == "5a1b2c" {
			return &Person{Login: "cwhite", Name: "C. White"}, nil
		}
		return nil, errors.New("not found")
	}
	r := NewResolver("trello", testMembers(), map[string]string{"cwhite": "carol.w"}, fetch, quietLogger())

	m := r.ResolveLogin(context.Background(), "5a1b2c")

	require.True(t, m.Found())
	assert.Equal(t, carolID, *m.ID())
}

func TestDisplayName(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, login string) (*Person, error) {
		atomic.AddInt32(&calls, 1)
		switch login {
		case "jdoe":
			return &Person{Login: "jdoe", Name: "John Doe"}, nil
		case "anon":
			return &Person{Login: "anon"}, nil
		}
		return nil, errors.New("not found")
	}
	r := NewResolver("github", nil, nil, fetch, quietLogger())
	ctx := context.Background()

	assert.Equal(t, "Known Name", r.DisplayName(ctx, &Person{Login: "x", Name: "Known Name"}))
	assert.Equal(t, "John Doe", r.DisplayName(ctx, &Person{Login: "jdoe"}))
	assert.Equal(t, "John Doe", r.DisplayNameForLogin(ctx, "jdoe"))
	assert.Equal(t, "anon", r.DisplayNameForLogin(ctx, "anon"))
	assert.Equal(t, "missing", r.DisplayNameForLogin(ctx, "missing"))
	assert.Equal(t, "", r.DisplayName(ctx, nil))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "display names are cached per login")
}
