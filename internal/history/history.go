// Package history persists batch runs. A run is read once when it starts
// and written back once when it ends; nothing mutates history in between.
package history

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"postcraft/internal/models"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/repositories"
)

// Store is the injectable history backend.
type Store interface {
	Get(ctx context.Context, id string) (*models.Run, error)
	Set(ctx context.Context, run *models.Run) error
	List(ctx context.Context, limit int) ([]models.Run, error)
	Clear(ctx context.Context) error
}

// NewPostgres returns the pgx-backed store. Call EnsureSchema once at
// startup.
func NewPostgres(pool *pgxpool.Pool) *repositories.RunRepository {
	return repositories.NewRunRepository(pool)
}

// Memory keeps runs in process. It copies on read and write so callers
// cannot mutate stored runs.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]models.Run
}

func NewMemory() *Memory {
	return &Memory{runs: map[string]models.Run{}}
}

func (m *Memory) Get(ctx context.Context, id string) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, errors.NotFound("run", id)
	}
	cp := clone(run)
	return &cp, nil
}

func (m *Memory) Set(ctx context.Context, run *models.Run) error {
	if run == nil || run.ID == "" {
		return errors.ValidationField("id", "run id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = clone(*run)
	return nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]models.Run, error) {
	m.mu.RLock()
	out := make([]models.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, clone(r))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = map[string]models.Run{}
	return nil
}

func clone(r models.Run) models.Run {
	r.Items = append(r.Items[:0:0], r.Items...)
	r.Results = append(r.Results[:0:0], r.Results...)
	r.Summary.Failures = append(r.Summary.Failures[:0:0], r.Summary.Failures...)
	return r
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
	_ Store = (*repositories.RunRepository)(nil)
)
