package migrate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dataiku/clubhouse-migration/internal/identity"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

// fakeShortcut is an in-memory Shortcut workspace served over HTTP.
type fakeShortcut struct {
	mu          sync.Mutex
	projects    []shortcut.Project
	workflow    shortcut.Workflow
	members     []shortcut.Member
	epics       []shortcut.EpicSlim
	stories     []shortcut.CreateStoryParams
	linkedFiles []shortcut.CreateLinkedFileParams
	searches    int
	nextID      int64
}

func newFakeShortcut() *fakeShortcut {
	return &fakeShortcut{
		projects: []shortcut.Project{{ID: 10, Name: "DSS", WorkflowID: 500}},
		workflow: shortcut.Workflow{
			ID:   500,
			Name: "Engineering",
			States: []shortcut.WorkflowState{
				{ID: 500001, Name: "Unscheduled", Type: "unstarted"},
				{ID: 500002, Name: "In Development", Type: "started"},
				{ID: 500003, Name: "Ready for Review", Type: "started"},
				{ID: 500004, Name: "Completed", Type: "done"},
			},
		},
		members: []shortcut.Member{
			{ID: uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001"), Profile: shortcut.Profile{MentionName: "alice", Name: "Alice Martin"}},
			{ID: uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002"), Profile: shortcut.Profile{MentionName: "bob", Name: "Bob Stone"}},
		},
		nextID: 1,
	}
}

func (f *fakeShortcut) client(t *testing.T) *shortcut.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return shortcut.NewClient("test-token").
		WithEndpoint(server.URL).
		WithLimiter(rate.NewLimiter(rate.Inf, 0))
}

func (f *fakeShortcut) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/projects":
		writeJSON(w, f.projects)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/workflows/"):
		writeJSON(w, f.workflow)
	case r.Method == http.MethodGet && path == "/members":
		writeJSON(w, f.members)
	case r.Method == http.MethodGet && path == "/epics":
		writeJSON(w, f.epics)
	case r.Method == http.MethodPost && path == "/epics":
		var params shortcut.CreateEpicParams
		_ = json.NewDecoder(r.Body).Decode(&params)
		epic := shortcut.EpicSlim{ID: f.id(), Name: params.Name}
		f.epics = append(f.epics, epic)
		writeJSON(w, epic)
	case r.Method == http.MethodPost && path == "/stories/search":
		var params shortcut.SearchStoriesParams
		_ = json.NewDecoder(r.Body).Decode(&params)
		f.searches++
		found := []shortcut.StorySlim{}
		for i, s := range f.stories {
			if s.ExternalID == params.ExternalID {
				found = append(found, shortcut.StorySlim{ID: int64(i + 1), Name: s.Name, ExternalID: s.ExternalID})
			}
		}
		writeJSON(w, found)
	case r.Method == http.MethodPost && path == "/stories":
		var params shortcut.CreateStoryParams
		_ = json.NewDecoder(r.Body).Decode(&params)
		f.stories = append(f.stories, params)
		writeJSON(w, shortcut.Story{StorySlim: shortcut.StorySlim{ID: int64(len(f.stories)), Name: params.Name, ExternalID: params.ExternalID}})
	case r.Method == http.MethodPost && path == "/linked-files":
		var params shortcut.CreateLinkedFileParams
		_ = json.NewDecoder(r.Body).Decode(&params)
		f.linkedFiles = append(f.linkedFiles, params)
		writeJSON(w, shortcut.LinkedFile{ID: f.id(), Name: params.Name, URL: params.URL})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}
}

func (f *fakeShortcut) id() int64 {
	f.nextID++
	return 9000 + f.nextID
}

func (f *fakeShortcut) storyList() []shortcut.CreateStoryParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shortcut.CreateStoryParams(nil), f.stories...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubUsers resolves logins from a fixed table and never fetches.
type stubUsers struct {
	members map[string]*shortcut.Member
	names   map[string]string
}

func (s *stubUsers) Resolve(ctx context.Context, p *identity.Person) identity.Match {
	if p == nil {
		return identity.Match{}
	}
	return s.ResolveLogin(ctx, p.Login)
}

func (s *stubUsers) ResolveLogin(ctx context.Context, login string) identity.Match {
	return identity.Match{Member: s.members[login]}
}

func (s *stubUsers) DisplayName(ctx context.Context, p *identity.Person) string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return s.DisplayNameForLogin(ctx, p.Login)
}

func (s *stubUsers) DisplayNameForLogin(ctx context.Context, login string) string {
	if name, ok := s.names[login]; ok {
		return name
	}
	return login
}
