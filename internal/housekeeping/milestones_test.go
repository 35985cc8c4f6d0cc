package housekeeping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

func TestReorderMilestonesDescending(t *testing.T) {
	ws := newFakeWorkspace()
	ws.milestones = []shortcut.Milestone{
		{ID: 1, Name: "DSS 3.1.0"},
		{ID: 2, Name: "DSS 1.4.0"},
		{ID: 3, Name: "DSS 2.3.0"},
	}
	h := newHousekeeper(t, ws, false)

	require.NoError(t, h.ReconcileMilestones(context.Background(), ""))

	assert.Equal(t, []string{"DSS 3.1.0", "DSS 2.3.0", "DSS 1.4.0"}, ws.milestoneNames())
	assert.Equal(t, 3, ws.moves, "the first move is rejected as a self move and tolerated")
}

func TestReorderMilestonesAlreadyOrdered(t *testing.T) {
	ws := newFakeWorkspace()
	ws.milestones = []shortcut.Milestone{
		{ID: 1, Name: "DSS 3.1.0"},
		{ID: 2, Name: "DSS 2.3.0"},
		{ID: 3, Name: "DSS 1.4.0"},
	}
	h := newHousekeeper(t, ws, false)

	require.NoError(t, h.ReconcileMilestones(context.Background(), ""))
	assert.Equal(t, []string{"DSS 3.1.0", "DSS 2.3.0", "DSS 1.4.0"}, ws.milestoneNames())
}

func TestReorderMilestonesEmpty(t *testing.T) {
	ws := newFakeWorkspace()
	h := newHousekeeper(t, ws, false)

	require.NoError(t, h.ReconcileMilestones(context.Background(), ""))
	assert.Zero(t, ws.moves)
}

func TestReconcileMilestonesLinksReleaseEpics(t *testing.T) {
	ws := newFakeWorkspace()
	shipped := daysAgo(10)
	ws.milestones = []shortcut.Milestone{{ID: 50, Name: "DSS 2.3.0"}}
	ws.epics = []shortcut.EpicSlim{
		{ID: 1, Name: "3.1.0 Enhancements", State: "done", CompletedAtOverride: shipped},
		{ID: 2, Name: "2.3.0 Enhancements"},
		{ID: 3, Name: "1.4.0 Enhancements", MilestoneID: int64Ptr(99)},
		{ID: 4, Name: "Backlog"},
		{ID: 5, Name: "10.0.0 Enhancements"},
	}
	h := newHousekeeper(t, ws, false)

	require.NoError(t, h.ReconcileMilestones(context.Background(), ""))

	require.Len(t, ws.milestones, 2)
	created := ws.milestones[indexOfName(ws.milestones, "DSS 3.1.0")]
	assert.Equal(t, "done", created.State)
	require.NotNil(t, created.CompletedAtOverride)
	assert.True(t, created.CompletedAtOverride.Equal(*shipped))

	require.Len(t, ws.epicUpdates, 2)
	assert.Equal(t, created.ID, *ws.epicUpdates[1].MilestoneID)
	assert.Equal(t, int64(50), *ws.epicUpdates[2].MilestoneID)

	assert.Equal(t, []string{"DSS 3.1.0", "DSS 2.3.0"}, ws.milestoneNames())
}

func TestReconcileMilestonesCustomPattern(t *testing.T) {
	ws := newFakeWorkspace()
	ws.epics = []shortcut.EpicSlim{
		{ID: 1, Name: "12.0.1 Enhancements"},
		{ID: 2, Name: "3.1.0 Enhancements"},
	}
	h := newHousekeeper(t, ws, false)

	require.NoError(t, h.ReconcileMilestones(context.Background(), `^\d+\.\d+\.\d+ Enhancements$`))
	assert.Equal(t, []string{"DSS 12.0.1", "DSS 3.1.0"}, ws.milestoneNames())

	assert.Error(t, h.ReconcileMilestones(context.Background(), `(`))
}

func TestReconcileMilestonesDryRun(t *testing.T) {
	ws := newFakeWorkspace()
	ws.milestones = []shortcut.Milestone{{ID: 1, Name: "DSS 1.4.0"}, {ID: 2, Name: "DSS 2.3.0"}}
	ws.epics = []shortcut.EpicSlim{{ID: 1, Name: "3.1.0 Enhancements"}, {ID: 2, Name: "2.3.0 Enhancements"}}
	h := newHousekeeper(t, ws, true)

	require.NoError(t, h.ReconcileMilestones(context.Background(), ""))

	assert.Empty(t, ws.epicUpdates)
	assert.Zero(t, ws.moves)
	assert.Equal(t, []string{"DSS 1.4.0", "DSS 2.3.0"}, ws.milestoneNames())
}

func TestSortMilestones(t *testing.T) {
	in := []shortcut.Milestone{
		{Name: "DSS 9.0.0"},
		{Name: "Backlog"},
		{Name: "DSS 10.0.0"},
		{Name: "DSS 9.0.1"},
		{Name: "Archive"},
	}
	got := SortMilestones(in)

	names := make([]string, len(got))
	for i, m := range got {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"DSS 10.0.0", "DSS 9.0.1", "DSS 9.0.0", "Backlog", "Archive"}, names)
	assert.Equal(t, "DSS 9.0.0", in[0].Name, "input is not modified")
}

func TestMilestoneName(t *testing.T) {
	assert.Equal(t, "DSS 3.1.0", MilestoneName("3.1.0 Enhancements"))
	assert.Equal(t, "DSS 12.0.1", MilestoneName("12.0.1 Enhancements"))
	assert.Equal(t, "DSS ", MilestoneName(""))
}

func indexOfName(milestones []shortcut.Milestone, name string) int {
	for i, m := range milestones {
		if m.Name == name {
			return i
		}
	}
	return -1
}
