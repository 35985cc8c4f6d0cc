package migrate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dataiku/clubhouse-migration/internal/identity"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
	"github.com/dataiku/clubhouse-migration/internal/trello"
)

// Ways a board's lists can be carried over, see BoardParams.MigrateListsAs.
const (
	ListsAsStates = "state"
	ListsAsLabels = "label"
	ListsAsEpics  = "epic"
)

// ReviewState is the workflow state of cards labelled as awaiting review.
const ReviewState = "Ready for Review"

var bugLabels = map[string]bool{
	"bug":       true,
	"type:bug":  true,
	"type: bug": true,
}

var reviewLabels = map[string]bool{
	"verified":                  true,
	"__fixed":                   true,
	"fixed":                     true,
	"status: fixed (to verify)": true,
	"verified - keeping open because needs test": true,
	"[ qa ] - to verify":                         true,
	"fixed (to verify)":                          true,
	"to verify (old)":                            true,
	"done (to verify)":                           true,
}

var trelloColors = map[string]string{
	"lime":   "#51e898",
	"yellow": "#f2d600",
	"purple": "#c377e0",
	"blue":   "#0079bf",
	"red":    "#eb5a46",
	"green":  "#61bd4f",
	"orange": "#ffab4a",
	"black":  "#000000",
	"sky":    "#00c2e0",
	"pink":   "#ff80ce",
}

// BoardParams configure the migration of one board.
type BoardParams struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Migrate bool   `json:"migrate" yaml:"migrate" toml:"migrate"`

	// MigrateListsAs is one of ListsAsStates, ListsAsLabels or ListsAsEpics.
	MigrateListsAs string `json:"migrateListsAs" yaml:"migrateListsAs" toml:"migrateListsAs"`

	// MigrateLabelsIn sends cards carrying a label into the named epic.
	MigrateLabelsIn map[string]string `json:"migrateLabelsIn" yaml:"migrateLabelsIn" toml:"migrateLabelsIn"`

	// ListStateMapping maps list names to workflow state names. Required
	// when lists are migrated as states.
	ListStateMapping map[string]string `json:"listStateMapping" yaml:"listStateMapping" toml:"listStateMapping"`
}

// TrelloParams are the per-run settings read from the params file.
type TrelloParams struct {
	Boards        []BoardParams     `json:"boards" yaml:"boards" toml:"boards"`
	IgnoredLists  []string          `json:"ignoredLists" yaml:"ignoredLists" toml:"ignoredLists"`
	LabelsMapping map[string]string `json:"labelsMapping" yaml:"labelsMapping" toml:"labelsMapping"`

	// UsersMapping maps Trello usernames to Shortcut mention names.
	UsersMapping map[string]string `json:"usersMapping" yaml:"usersMapping" toml:"usersMapping"`
}

// Board returns the params of the named board. Boards without params are
// not migrated and carry their lists over as labels.
func (p TrelloParams) Board(name string) BoardParams {
	for _, b := range p.Boards {
		if strings.EqualFold(b.Name, name) {
			return b
		}
	}
	return BoardParams{Name: name, Migrate: false, MigrateListsAs: ListsAsLabels}
}

// IsIgnoredList reports whether cards of the named list are skipped.
func (p TrelloParams) IsIgnoredList(name string) bool {
	for _, l := range p.IgnoredLists {
		if l == name {
			return true
		}
	}
	return false
}

func (p TrelloParams) mapLabel(name string) string {
	if mapped, ok := p.LabelsMapping[name]; ok {
		return mapped
	}
	return name
}

// TrelloMarker is the external-id marker of a Trello card.
func TrelloMarker(cardID string) string {
	return "trello-" + cardID
}

// trelloRecord is a card with everything fetched for it.
type trelloRecord struct {
	Board       trello.Board
	List        trello.List
	Card        trello.Card
	Actions     []trello.Action
	Checklists  []trello.Checklist
	Attachments []trello.Attachment
	Cover       *trello.Attachment
}

// trelloTransformer builds story payloads from Trello cards.
type trelloTransformer struct {
	projectID   int64
	completedID int64
	reviewID    int64
	states      *shortcut.StateIndex
	params      TrelloParams
	users       Users
}

// EpicName returns the epic of a card: the target of its first label listed
// in migrateLabelsIn, else the board name, suffixed with the list name when
// lists are migrated as epics.
func (t *trelloTransformer) EpicName(rec *trelloRecord) string {
	board := t.params.Board(rec.Board.Name)
	name := rec.Board.Name
	for _, l := range rec.Card.Labels {
		if epic, ok := board.MigrateLabelsIn[l.Name]; ok {
			name = epic
			break
		}
	}
	if strings.EqualFold(board.MigrateListsAs, ListsAsEpics) {
		name += " - " + rec.List.Name
	}
	return name
}

// Story converts a card into a story payload. Linked files are attached by
// the caller. It fails when the board maps lists to states and the card's
// list has no valid mapping.
func (t *trelloTransformer) Story(ctx context.Context, rec *trelloRecord, epicID *int64) (*shortcut.CreateStoryParams, error) {
	card := &rec.Card
	actions := sortedActions(rec.Actions)
	var first, last time.Time
	if len(actions) > 0 {
		first = actions[0].Date
		last = actions[len(actions)-1].Date
	}

	stateID, err := t.state(rec)
	if err != nil {
		return nil, err
	}

	notes := []string{
		fmt.Sprintf("* This card has been imported from Trello card [#%s](%s)", card.ID, card.URL),
	}

	storyType := "feature"
	if hasLabel(card.Labels, bugLabels) {
		storyType = "bug"
	}

	params := &shortcut.CreateStoryParams{
		Name:            card.Name,
		ProjectID:       t.projectID,
		StoryType:       storyType,
		CreatedAt:       timePtr(first),
		UpdatedAt:       timePtr(last),
		WorkflowStateID: stateID,
		EpicID:          epicID,
		Tasks:           trelloTasks(rec.Checklists),
		Labels:          t.labels(rec),
		Comments:        t.comments(ctx, actions),
	}
	if stateID != nil && *stateID == t.completedID {
		params.CompletedAtOverride = timePtr(last)
	}

	if len(actions) > 0 {
		reporter := identity.FromTrello(actions[0].MemberCreator)
		if m := t.users.Resolve(ctx, reporter); m.Found() {
			params.RequestedByID = m.ID()
		} else if reporter != nil {
			notes = append(notes, fmt.Sprintf("* Originally reported by **%s**", t.users.DisplayName(ctx, reporter)))
		}
	}
	for _, id := range card.IDMembers {
		if m := t.users.ResolveLogin(ctx, id); m.Found() {
			params.OwnerIDs = append(params.OwnerIDs, *m.ID())
		}
	}

	marker := TrelloMarker(card.ID)
	params.ExternalID = marker
	params.ExternalTickets = []shortcut.CreateExternalTicketParams{
		{ExternalID: marker, ExternalURL: card.URL},
	}

	description := card.Desc
	if rec.Cover != nil {
		description = "![" + rec.Cover.Name + "](" + rec.Cover.URL + ")\n\n" + description
	}
	params.Description = description + Footer(notes)
	return params, nil
}

func (t *trelloTransformer) state(rec *trelloRecord) (*int64, error) {
	if rec.Card.Closed {
		return int64Ptr(t.completedID), nil
	}

	if t.listsAsStates(rec.Board.Name) {
		id, err := t.listState(rec.Board.Name, rec.List.Name)
		if err != nil {
			return nil, err
		}
		return int64Ptr(id), nil
	}

	if hasLabel(rec.Card.Labels, reviewLabels) {
		return int64Ptr(t.reviewID), nil
	}
	return nil, nil
}

func (t *trelloTransformer) listsAsStates(board string) bool {
	return strings.EqualFold(t.params.Board(board).MigrateListsAs, ListsAsStates)
}

// listState resolves the workflow state a list maps to on a board that
// migrates its lists as states.
func (t *trelloTransformer) listState(board, list string) (int64, error) {
	mapping := t.params.Board(board).ListStateMapping
	if len(mapping) == 0 {
		return 0, fmt.Errorf("missing 'listStateMapping' for board %s", board)
	}
	stateName, ok := mapping[list]
	if !ok {
		return 0, fmt.Errorf("missing mapping for %s in 'listStateMapping' for board %s", list, board)
	}
	state, ok := t.states.ByName(stateName)
	if !ok {
		return 0, fmt.Errorf("unknown workflow state: %s", stateName)
	}
	return state.ID, nil
}

func (t *trelloTransformer) labels(rec *trelloRecord) []shortcut.CreateLabelParams {
	var result []shortcut.CreateLabelParams
	for _, l := range rec.Card.Labels {
		if bugLabels[strings.ToLower(l.Name)] {
			continue
		}
		result = append(result, shortcut.CreateLabelParams{Name: t.params.mapLabel(l.Name), Color: TrelloColor(l.Color)})
	}
	if strings.EqualFold(t.params.Board(rec.Board.Name).MigrateListsAs, ListsAsLabels) {
		result = append(result, shortcut.CreateLabelParams{Name: t.params.mapLabel(rec.List.Name)})
	}
	return result
}

func (t *trelloTransformer) comments(ctx context.Context, actions []trello.Action) []shortcut.CreateCommentParams {
	var result []shortcut.CreateCommentParams
	for _, a := range actions {
		if !strings.EqualFold(a.Type, trello.ActionCommentCard) {
			continue
		}
		author := identity.FromTrello(a.MemberCreator)
		text := a.Data.Text
		authorID := t.users.Resolve(ctx, author).ID()
		if authorID == nil {
			if name := t.users.DisplayName(ctx, author); name != "" {
				text = "**" + name + ":** " + text
			}
		}
		result = append(result, shortcut.CreateCommentParams{
			AuthorID:  authorID,
			CreatedAt: timePtr(a.Date),
			Text:      text,
		})
	}
	return result
}

// LinkedFiles describes the card attachments as linked files.
func (t *trelloTransformer) LinkedFiles(ctx context.Context, attachments []trello.Attachment) []shortcut.CreateLinkedFileParams {
	result := make([]shortcut.CreateLinkedFileParams, 0, len(attachments))
	for _, a := range attachments {
		var uploader *uuid.UUID
		if a.IDMember != "" {
			uploader = t.users.ResolveLogin(ctx, a.IDMember).ID()
		}
		result = append(result, shortcut.CreateLinkedFileParams{
			Name:        a.Name,
			URL:         a.URL,
			Type:        "url",
			Size:        a.Bytes,
			Description: "Migrated from Trello attachment " + a.ID,
			UploaderID:  uploader,
		})
	}
	return result
}

// TrelloColor converts a Trello color name to hex.
func TrelloColor(color string) string {
	if hex, ok := trelloColors[color]; ok {
		return hex
	}
	return hexColor(color)
}

func sortedActions(actions []trello.Action) []trello.Action {
	sorted := append([]trello.Action(nil), actions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

func trelloTasks(checklists []trello.Checklist) []shortcut.CreateTaskParams {
	var result []shortcut.CreateTaskParams
	for _, cl := range checklists {
		items := append([]trello.CheckItem(nil), cl.CheckItems...)
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Pos < items[j].Pos
		})
		for _, item := range items {
			result = append(result, shortcut.CreateTaskParams{
				Description: item.Name,
				Complete:    strings.EqualFold(item.State, "complete"),
			})
		}
	}
	return result
}

func hasLabel(labels []trello.Label, set map[string]bool) bool {
	for _, l := range labels {
		if set[strings.ToLower(l.Name)] {
			return true
		}
	}
	return false
}
