package housekeeping

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

// DefaultReleasePattern matches the epics created for release milestones
// by the GitHub migration.
const DefaultReleasePattern = `^\d\.\d\.\d Enhancements$`

// MilestonePrefix is prepended to the version of a release epic to name its
// milestone.
const MilestonePrefix = "DSS "

// ReconcileMilestones attaches every release epic without a milestone to
// the milestone of its version, creating the milestone when needed, then
// orders all milestones by name, newest version first. An empty pattern
// means DefaultReleasePattern.
func (h *Housekeeper) ReconcileMilestones(ctx context.Context, pattern string) error {
	if pattern == "" {
		pattern = DefaultReleasePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid release epic pattern %q: %w", pattern, err)
	}

	milestones, err := h.target.ListMilestones(ctx)
	if err != nil {
		return err
	}
	epics, err := h.target.ListEpics(ctx)
	if err != nil {
		return err
	}

	for _, epic := range epics {
		if epic.MilestoneID != nil || !re.MatchString(epic.Name) {
			continue
		}
		name := MilestoneName(epic.Name)
		milestone := findMilestone(milestones, name)
		if milestone == nil {
			if h.opts.DryRun {
				h.logger.Info("[dry-run] Would create milestone " + name + " for epic " + epic.Name)
				continue
			}
			h.logger.Info("Creating missing milestone " + name)
			milestone, err = h.target.CreateMilestone(ctx, shortcut.CreateMilestoneParams{
				Name:                name,
				State:               epic.State,
				CompletedAtOverride: epic.CompletedAtOverride,
			})
			if err != nil {
				return err
			}
			milestones = append(milestones, *milestone)
		}

		if h.opts.DryRun {
			h.logger.Info("[dry-run] Would associate milestone " + name + " with epic " + epic.Name)
			continue
		}
		h.logger.Info("Associating milestone " + name + " with epic " + epic.Name)
		id := milestone.ID
		if _, err := h.target.UpdateEpic(ctx, epic.ID, shortcut.UpdateEpicParams{MilestoneID: &id}); err != nil {
			return err
		}
	}

	return h.reorderMilestones(ctx)
}

// reorderMilestones sorts the milestones by name descending with pairwise
// moves. A move the API rejects is taken to mean the milestone already sits
// at the requested position.
func (h *Housekeeper) reorderMilestones(ctx context.Context) error {
	h.logger.Info("Reordering milestones")
	current, err := h.target.ListMilestones(ctx)
	if err != nil {
		return err
	}
	if len(current) == 0 {
		return nil
	}
	sorted := SortMilestones(current)

	h.move(ctx, sorted[0], current[0], true)
	for i := 1; i < len(sorted); i++ {
		h.move(ctx, sorted[i], sorted[i-1], false)
	}
	return nil
}

func (h *Housekeeper) move(ctx context.Context, m, anchor shortcut.Milestone, before bool) {
	where := "after"
	params := shortcut.UpdateMilestoneParams{}
	anchorID := anchor.ID
	if before {
		where = "before"
		params.BeforeID = &anchorID
	} else {
		params.AfterID = &anchorID
	}

	if h.opts.DryRun {
		h.logger.Info("[dry-run] Would move milestone " + m.Name + " " + where + " " + anchor.Name)
		return
	}
	h.logger.Info("Move milestone " + m.Name + " " + where + " " + anchor.Name)
	if _, err := h.target.UpdateMilestone(ctx, m.ID, params); err != nil {
		h.logger.Info("Milestone "+m.Name+" already ordered", "error", err)
	}
}

// MilestoneName returns the milestone of a release epic: MilestonePrefix
// followed by the first word of the epic name.
func MilestoneName(epicName string) string {
	version := epicName
	if fields := strings.Fields(epicName); len(fields) > 0 {
		version = fields[0]
	}
	return MilestonePrefix + version
}

// SortMilestones returns a copy of milestones sorted by name descending.
// Names whose part after MilestonePrefix parses as a semantic version are
// compared as versions; otherwise names compare as strings.
func SortMilestones(milestones []shortcut.Milestone) []shortcut.Milestone {
	sorted := append([]shortcut.Milestone(nil), milestones...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareNames(sorted[i].Name, sorted[j].Name) > 0
	})
	return sorted
}

func compareNames(a, b string) int {
	va, errA := semver.NewVersion(strings.TrimPrefix(a, MilestonePrefix))
	vb, errB := semver.NewVersion(strings.TrimPrefix(b, MilestonePrefix))
	if errA == nil && errB == nil {
		if c := va.Compare(vb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

func findMilestone(milestones []shortcut.Milestone, name string) *shortcut.Milestone {
	for i := range milestones {
		if milestones[i].Name == name {
			m := milestones[i]
			return &m
		}
	}
	return nil
}
