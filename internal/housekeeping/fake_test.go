package housekeeping

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

// fakeWorkspace is an in-memory Shortcut workspace.
type fakeWorkspace struct {
	mu         sync.Mutex
	epicStates []shortcut.EpicState
	stories    []shortcut.StorySlim
	epics      []shortcut.EpicSlim
	milestones []shortcut.Milestone
	labels     []shortcut.Label

	searches    []shortcut.SearchStoriesParams
	epicUpdates map[int64]shortcut.UpdateEpicParams
	failStory   int64
	failEpic    int64
	moves       int
	nextID      int64
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		epicStates: []shortcut.EpicState{
			{ID: 1, Name: "To Do", Type: "unstarted"},
			{ID: 2, Name: "In Progress", Type: "started"},
			{ID: 3, Name: "Done", Type: "done"},
		},
		epicUpdates: make(map[int64]shortcut.UpdateEpicParams),
		nextID:      1000,
	}
}

func (f *fakeWorkspace) SearchStories(ctx context.Context, params shortcut.SearchStoriesParams) ([]shortcut.StorySlim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, params)
	var out []shortcut.StorySlim
	for _, s := range f.stories {
		if params.Archived != nil && s.Archived != *params.Archived {
			continue
		}
		if params.CompletedAtEnd != nil && (s.CompletedAt == nil || s.CompletedAt.After(*params.CompletedAtEnd)) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeWorkspace) UpdateStory(ctx context.Context, id int64, params *shortcut.UpdateStoryParams) (*shortcut.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failStory {
		return nil, fmt.Errorf("story %d is locked", id)
	}
	for i := range f.stories {
		if f.stories[i].ID == id {
			if params.Archived != nil {
				f.stories[i].Archived = *params.Archived
			}
			return &shortcut.Story{StorySlim: f.stories[i]}, nil
		}
	}
	return nil, shortcut.ErrNotFound
}

func (f *fakeWorkspace) UpdateStories(ctx context.Context, params shortcut.UpdateStoriesParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range params.StoryIDs {
		for i := range f.stories {
			if f.stories[i].ID == id && params.Archived != nil {
				f.stories[i].Archived = *params.Archived
			}
		}
	}
	return nil
}

func (f *fakeWorkspace) DeleteStories(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.stories[:0]
	for _, s := range f.stories {
		if drop[s.ID] {
			if !s.Archived {
				return fmt.Errorf("story %d is not archived", s.ID)
			}
			continue
		}
		kept = append(kept, s)
	}
	f.stories = kept
	return nil
}

func (f *fakeWorkspace) ListEpics(ctx context.Context) ([]shortcut.EpicSlim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shortcut.EpicSlim(nil), f.epics...), nil
}

func (f *fakeWorkspace) UpdateEpic(ctx context.Context, id int64, params shortcut.UpdateEpicParams) (*shortcut.Epic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failEpic {
		return nil, fmt.Errorf("epic %d is locked", id)
	}
	f.epicUpdates[id] = params
	for i := range f.epics {
		e := &f.epics[i]
		if e.ID != id {
			continue
		}
		if params.Archived != nil {
			e.Archived = *params.Archived
		}
		if params.EpicStateID != nil {
			e.EpicStateID = *params.EpicStateID
		}
		if params.MilestoneID != nil {
			e.MilestoneID = params.MilestoneID
		}
		out := *e
		return &out, nil
	}
	return nil, shortcut.ErrNotFound
}

func (f *fakeWorkspace) DeleteEpic(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.epics {
		if f.epics[i].ID == id {
			f.epics = append(f.epics[:i], f.epics[i+1:]...)
			return nil
		}
	}
	return shortcut.ErrNotFound
}

func (f *fakeWorkspace) GetEpicWorkflow(ctx context.Context) (*shortcut.EpicWorkflow, error) {
	return &shortcut.EpicWorkflow{ID: 1, EpicStates: f.epicStates}, nil
}

func (f *fakeWorkspace) ListMilestones(ctx context.Context) ([]shortcut.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shortcut.Milestone(nil), f.milestones...), nil
}

func (f *fakeWorkspace) CreateMilestone(ctx context.Context, params shortcut.CreateMilestoneParams) (*shortcut.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := shortcut.Milestone{ID: f.nextID, Name: params.Name, State: params.State, CompletedAtOverride: params.CompletedAtOverride}
	f.milestones = append(f.milestones, m)
	return &m, nil
}

// UpdateMilestone moves a milestone. Like the real API it rejects moving a
// milestone relative to itself.
func (f *fakeWorkspace) UpdateMilestone(ctx context.Context, id int64, params shortcut.UpdateMilestoneParams) (*shortcut.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves++

	var anchor int64
	after := false
	switch {
	case params.BeforeID != nil:
		anchor = *params.BeforeID
	case params.AfterID != nil:
		anchor = *params.AfterID
		after = true
	default:
		return nil, fmt.Errorf("nothing to update")
	}
	if anchor == id {
		return nil, &shortcut.APIError{StatusCode: 400, Message: "cannot move a milestone relative to itself"}
	}

	from := indexOf(f.milestones, id)
	if from < 0 || indexOf(f.milestones, anchor) < 0 {
		return nil, shortcut.ErrNotFound
	}
	m := f.milestones[from]
	rest := append(append([]shortcut.Milestone(nil), f.milestones[:from]...), f.milestones[from+1:]...)
	to := indexOf(rest, anchor)
	if after {
		to++
	}
	f.milestones = append(rest[:to], append([]shortcut.Milestone{m}, rest[to:]...)...)
	return &m, nil
}

func (f *fakeWorkspace) DeleteMilestone(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := indexOf(f.milestones, id); i >= 0 {
		f.milestones = append(f.milestones[:i], f.milestones[i+1:]...)
		return nil
	}
	return shortcut.ErrNotFound
}

func (f *fakeWorkspace) ListLabels(ctx context.Context) ([]shortcut.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shortcut.Label(nil), f.labels...), nil
}

func (f *fakeWorkspace) DeleteLabel(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.labels {
		if f.labels[i].ID == id {
			f.labels = append(f.labels[:i], f.labels[i+1:]...)
			return nil
		}
	}
	return shortcut.ErrNotFound
}

func (f *fakeWorkspace) milestoneNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.milestones))
	for i, m := range f.milestones {
		names[i] = m.Name
	}
	return names
}

func indexOf(milestones []shortcut.Milestone, id int64) int {
	for i, m := range milestones {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
