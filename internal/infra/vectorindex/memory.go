package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
)

type memoryEntry struct {
	vector []float32
	scope  string
}

// MemoryIndex is an in-memory dedup.VectorIndex used for tests/dev.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
}

// NewMemoryIndex constructs an index backed by process memory.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[uuid.UUID]memoryEntry)}
}

// Upsert implements dedup.VectorIndex.
func (x *MemoryIndex) Upsert(_ context.Context, id uuid.UUID, vector []float32, scopeTag string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[id] = memoryEntry{
		vector: append([]float32(nil), vector...),
		scope:  scopeTag,
	}
	return nil
}

// Query implements dedup.VectorIndex.
func (x *MemoryIndex) Query(_ context.Context, vector []float32, topK int, scopeTag string) ([]dedup.VectorMatch, error) {
	if topK <= 0 {
		topK = 1
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	var matches []dedup.VectorMatch
	for id, entry := range x.entries {
		if entry.scope != scopeTag {
			continue
		}
		matches = append(matches, dedup.VectorMatch{
			ID:    id,
			Score: cosine(vector, entry.vector),
			Scope: entry.scope,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete implements dedup.VectorIndex.
func (x *MemoryIndex) Delete(_ context.Context, id uuid.UUID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, id)
	return nil
}

// Len reports the number of stored vectors.
func (x *MemoryIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func cosine(a, b []float32) float64 {
	length := len(a)
	if len(b) < length {
		length = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < length; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ dedup.VectorIndex = (*MemoryIndex)(nil)
