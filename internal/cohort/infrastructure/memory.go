package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/shared/errors"
	"github.com/rwdlab/rwdsim/internal/shared/types"
)

// MemoryRepository keeps runs in process memory. Used by the CLI and in
// tests, and by the server when no database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	runs   map[types.ID]*domain.Run
	tables map[types.ID]domain.Table
}

var _ domain.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		runs:   make(map[types.ID]*domain.Run),
		tables: make(map[types.ID]domain.Table),
	}
}

func (r *MemoryRepository) SaveRun(ctx context.Context, run *domain.Run, table domain.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	r.tables[run.ID] = table
	return nil
}

func (r *MemoryRepository) GetRun(ctx context.Context, id types.ID) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, errors.NotFound("run", id.String())
	}
	return run, nil
}

func (r *MemoryRepository) ListRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := make([]*domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *MemoryRepository) GetTable(ctx context.Context, id types.ID) (domain.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.tables[id]
	if !ok {
		return nil, errors.NotFound("run", id.String())
	}
	return table, nil
}
