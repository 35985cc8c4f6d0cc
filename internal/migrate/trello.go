package migrate

import (
	"context"
	"fmt"

	"github.com/dataiku/clubhouse-migration/internal/epics"
	"github.com/dataiku/clubhouse-migration/internal/identity"
	"github.com/dataiku/clubhouse-migration/internal/shortcut"
	"github.com/dataiku/clubhouse-migration/internal/trello"
)

// TrelloSource is the part of the Trello API the pipeline reads.
type TrelloSource interface {
	BoardsByOrganization(ctx context.Context, org string) ([]trello.Board, error)
	ListsByBoard(ctx context.Context, boardID string) ([]trello.List, error)
	CardsByList(ctx context.Context, listID string) ([]trello.Card, error)
	Board(ctx context.Context, id string) (*trello.Board, error)
	List(ctx context.Context, id string) (*trello.List, error)
	Card(ctx context.Context, id string) (*trello.Card, error)
	ActionsByCard(ctx context.Context, cardID string) ([]trello.Action, error)
	ChecklistsByCard(ctx context.Context, cardID string) ([]trello.Checklist, error)
	AttachmentsByCard(ctx context.Context, cardID string) ([]trello.Attachment, error)
	CoverByCard(ctx context.Context, card *trello.Card) (*trello.Attachment, error)
	Member(ctx context.Context, idOrUsername string) (*trello.Member, error)
}

// TrelloMigration migrates the boards of one organization into one project.
type TrelloMigration struct {
	*engine
	source       TrelloSource
	organization string
	params       TrelloParams
	users        *identity.Resolver
	epics        *epics.Resolver
	transform    *trelloTransformer
}

// NewTrelloMigration resolves everything the pipeline needs up front. An
// unknown project or a workflow missing the "Completed" or "Ready for
// Review" state is an error.
func NewTrelloMigration(ctx context.Context, target Target, source TrelloSource, organization string, params TrelloParams, opts Options) (*TrelloMigration, error) {
	e := newEngine("trello", target, opts, trello.IsRateLimited)

	project, err := target.FindProject(ctx, opts.Project)
	if err != nil {
		return nil, err
	}
	workflow, err := target.GetWorkflow(ctx, project.WorkflowID)
	if err != nil {
		return nil, err
	}
	states := shortcut.NewStateIndex(*workflow)
	completed, ok := states.ByName(CompletedState)
	if !ok {
		return nil, fmt.Errorf("workflow %q has no %q state", workflow.Name, CompletedState)
	}
	review, ok := states.ByName(ReviewState)
	if !ok {
		return nil, fmt.Errorf("workflow %q has no %q state", workflow.Name, ReviewState)
	}
	members, err := target.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	users := identity.NewResolver("trello", members, params.UsersMapping, identity.TrelloFetcher(source), e.logger)
	epicResolver := epics.NewResolver(target, opts.DryRun, e.logger)
	if err := epicResolver.Load(ctx); err != nil {
		return nil, err
	}

	return &TrelloMigration{
		engine:       e,
		source:       source,
		organization: organization,
		params:       params,
		users:        users,
		epics:        epicResolver,
		transform: &trelloTransformer{
			projectID:   project.ID,
			completedID: completed.ID,
			reviewID:    review.ID,
			states:      states,
			params:      params,
			users:       users,
		},
	}, nil
}

// Unresolved returns the Trello usernames that matched no Shortcut member.
func (m *TrelloMigration) Unresolved() []string {
	return m.users.Unresolved()
}

// Run migrates the cards of every open board whose params enable it. It
// blocks until all cards are processed, the drain timeout elapses or ctx
// is cancelled.
func (m *TrelloMigration) Run(ctx context.Context, workers int) error {
	m.logger.Info("Starting migration...", "organization", m.organization)

	boards, err := m.source.BoardsByOrganization(ctx, m.organization)
	if err != nil {
		return err
	}

	// Nothing is submitted until every board has been listed, so a board
	// with a broken list mapping stops the run before any card migrates.
	var jobs []func(ctx context.Context)
	seen := make(map[string]struct{})
	for _, board := range boards {
		if board.Closed || !m.params.Board(board.Name).Migrate {
			m.logger.Info("Skipping closed or ignored board: " + board.Name)
			continue
		}
		lists, err := m.source.ListsByBoard(ctx, board.ID)
		if err != nil {
			return err
		}
		for _, list := range lists {
			if m.params.IsIgnoredList(list.Name) {
				m.logger.Debug("Skipping ignored list: " + list.Name)
				continue
			}
			if m.transform.listsAsStates(board.Name) {
				if _, err := m.transform.listState(board.Name, list.Name); err != nil {
					return err
				}
			}
			cards, err := m.source.CardsByList(ctx, list.ID)
			if err != nil {
				return err
			}
			for _, card := range cards {
				if _, ok := seen[card.ID]; ok {
					continue
				}
				seen[card.ID] = struct{}{}
				rec := &trelloRecord{Board: board, List: list, Card: card}
				jobs = append(jobs, func(ctx context.Context) {
					_ = m.migrateCard(ctx, rec)
				})
			}
		}
	}
	m.logger.Info(fmt.Sprintf("Found %d cards to migrate.", len(jobs)))

	return m.drain(ctx, workers, jobs)
}

// MigrateCard migrates a single card by ID.
func (m *TrelloMigration) MigrateCard(ctx context.Context, cardID string) error {
	card, err := m.source.Card(ctx, cardID)
	if err != nil {
		return err
	}
	board, err := m.source.Board(ctx, card.IDBoard)
	if err != nil {
		return err
	}
	list, err := m.source.List(ctx, card.IDList)
	if err != nil {
		return err
	}
	return m.migrateCard(ctx, &trelloRecord{Board: *board, List: *list, Card: *card})
}

func (m *TrelloMigration) migrateCard(ctx context.Context, base *trelloRecord) error {
	label := fmt.Sprintf("card %q", base.Card.Name)
	return m.migrateRecord(ctx, TrelloMarker(base.Card.ID), label, func(ctx context.Context) (*shortcut.Story, error) {
		rec, err := m.fetch(ctx, base)
		if err != nil {
			return nil, err
		}

		var epicID *int64
		epic, err := m.epics.GetOrCreate(ctx, m.transform.EpicName(rec))
		if err != nil {
			return nil, err
		}
		if epic != nil {
			epicID = int64Ptr(epic.ID)
		}

		params, err := m.transform.Story(ctx, rec, epicID)
		if err != nil {
			return nil, err
		}
		if m.opts.DryRun {
			return nil, nil
		}

		for _, file := range m.transform.LinkedFiles(ctx, rec.Attachments) {
			linked, err := m.target.CreateLinkedFile(ctx, file)
			if err != nil {
				return nil, err
			}
			params.LinkedFileIDs = append(params.LinkedFileIDs, linked.ID)
		}
		return m.target.CreateStory(ctx, params)
	})
}

// fetch loads the card's history, checklists, attachments and cover.
func (m *TrelloMigration) fetch(ctx context.Context, base *trelloRecord) (*trelloRecord, error) {
	rec := *base
	var err error
	if rec.Actions, err = m.source.ActionsByCard(ctx, rec.Card.ID); err != nil {
		return nil, err
	}
	if rec.Checklists, err = m.source.ChecklistsByCard(ctx, rec.Card.ID); err != nil {
		return nil, err
	}
	if rec.Attachments, err = m.source.AttachmentsByCard(ctx, rec.Card.ID); err != nil {
		return nil, err
	}
	if rec.Cover, err = m.source.CoverByCard(ctx, &rec.Card); err != nil {
		return nil, err
	}
	return &rec, nil
}
