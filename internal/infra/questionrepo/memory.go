package questionrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	"github.com/quizmentor/quizmentor/pkg/util"
)

// MemoryStore is an in-memory dedup.RecordStore used for tests/dev. Global
// and lesson records live in separate maps, mirroring the two tables.
type MemoryStore struct {
	mu      sync.RWMutex
	global  map[uuid.UUID]dedup.Record
	lessons map[uuid.UUID]dedup.Record
}

// NewMemoryStore constructs a store backed by process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		global:  make(map[uuid.UUID]dedup.Record),
		lessons: make(map[uuid.UUID]dedup.Record),
	}
}

func (r *MemoryStore) pool(scope dedup.Scope) map[uuid.UUID]dedup.Record {
	if scope.IsGlobal() {
		return r.global
	}
	return r.lessons
}

// Create implements dedup.RecordStore.
func (r *MemoryStore) Create(_ context.Context, rec dedup.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool := r.pool(rec.Scope())
	if _, exists := pool[rec.ID]; exists {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	pool[rec.ID] = rec
	return nil
}

// FindByID implements dedup.RecordStore.
func (r *MemoryStore) FindByID(_ context.Context, scope dedup.Scope, id uuid.UUID) (dedup.Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.pool(scope)[id]
	return rec, ok, nil
}

// FindByIDs implements dedup.RecordStore, preserving the input ordering.
func (r *MemoryStore) FindByIDs(_ context.Context, scope dedup.Scope, ids []uuid.UUID) ([]dedup.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool := r.pool(scope)
	out := make([]dedup.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := pool[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// IncrementOccurrence implements dedup.RecordStore.
func (r *MemoryStore) IncrementOccurrence(_ context.Context, scope dedup.Scope, id uuid.UUID) (dedup.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool := r.pool(scope)
	rec, ok := pool[id]
	if !ok {
		return dedup.Record{}, fmt.Errorf("record %s not found", id)
	}
	rec.OccurrenceCount++
	rec.UpdatedAt = util.NowUTC()
	pool[id] = rec
	return rec, nil
}

// FinalizeVector implements dedup.RecordStore.
func (r *MemoryStore) FinalizeVector(_ context.Context, scope dedup.Scope, id, vectorID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool := r.pool(scope)
	rec, ok := pool[id]
	if !ok {
		return fmt.Errorf("record %s not found", id)
	}
	vid := vectorID
	rec.VectorID = &vid
	rec.UpdatedAt = util.NowUTC()
	pool[id] = rec
	return nil
}

// FindMissingVector implements dedup.RecordStore, oldest first.
// Dedup-bypassed records are vector-less by design and stay out.
func (r *MemoryStore) FindMissingVector(_ context.Context, scope dedup.Scope, limit int) ([]dedup.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []dedup.Record
	for _, rec := range r.pool(scope) {
		if rec.VectorID == nil && !rec.DedupBypassed {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete implements dedup.RecordStore.
func (r *MemoryStore) Delete(_ context.Context, scope dedup.Scope, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pool(scope), id)
	return nil
}

var _ dedup.RecordStore = (*MemoryStore)(nil)
