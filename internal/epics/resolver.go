// Package epics owns the list of Shortcut epics during a migration run and
// hands them out by name, creating missing ones exactly once.
package epics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dataiku/clubhouse-migration/internal/shortcut"
)

// Store is the part of the Shortcut API the resolver needs.
type Store interface {
	ListEpics(ctx context.Context) ([]shortcut.EpicSlim, error)
	CreateEpic(ctx context.Context, params shortcut.CreateEpicParams) (*shortcut.Epic, error)
}

// Resolver maps epic names to epics. The check-then-create sequence runs
// under a single mutex so concurrent workers asking for the same new name
// cause one creation.
type Resolver struct {
	store  Store
	dryRun bool
	logger *slog.Logger

	mu     sync.Mutex
	byName map[string]*shortcut.EpicSlim
}

// NewResolver creates a resolver backed by store. In dry-run mode missing
// epics are reported instead of created.
func NewResolver(store Store, dryRun bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		dryRun: dryRun,
		logger: logger,
		byName: make(map[string]*shortcut.EpicSlim),
	}
}

// Load fetches the current epics. The first epic wins when names collide.
func (r *Resolver) Load(ctx context.Context) error {
	list, err := r.store.ListEpics(ctx)
	if err != nil {
		return fmt.Errorf("failed to load epics: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*shortcut.EpicSlim, len(list))
	for i := range list {
		e := list[i]
		if _, ok := r.byName[e.Name]; !ok {
			r.byName[e.Name] = &e
		}
	}
	return nil
}

// GetOrCreate returns the epic called name, creating it when absent. An
// empty name yields nil. In dry-run mode an absent epic also yields nil.
func (r *Resolver) GetOrCreate(ctx context.Context, name string) (*shortcut.EpicSlim, error) {
	if name == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byName[name]; ok {
		return e, nil
	}
	if r.dryRun {
		r.logger.Info("[dry-run] Would create epic", "name", name)
		return nil, nil
	}

	created, err := r.store.CreateEpic(ctx, shortcut.CreateEpicParams{Name: name})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Created epic", "name", name, "id", created.ID)
	r.byName[name] = created
	return created, nil
}

// Lookup returns the epic called name without creating it.
func (r *Resolver) Lookup(name string) (*shortcut.EpicSlim, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	return e, ok
}

// Len returns the number of known epics.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}
