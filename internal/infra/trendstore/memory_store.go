package trendstore

import (
	"context"
	"sort"
	"sync"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
)

// MemoryStore is an in-memory dedup.TrendStore for tests/dev.
type MemoryStore struct {
	mu       sync.RWMutex
	counts   map[string]int64
	displays map[string]string
}

// NewMemoryStore constructs a store backed by process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counts:   make(map[string]int64),
		displays: make(map[string]string),
	}
}

// IncrementAsk implements dedup.TrendStore.
func (s *MemoryStore) IncrementAsk(_ context.Context, normalized, display string) error {
	if normalized == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[normalized]++
	if _, exists := s.displays[normalized]; !exists {
		s.displays[normalized] = display
	}
	return nil
}

// TopQuestions implements dedup.TrendStore.
func (s *MemoryStore) TopQuestions(_ context.Context, limit int) ([]dedup.TrendingQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = len(s.counts)
	}
	items := make([]dedup.TrendingQuestion, 0, len(s.counts))
	for normalized, count := range s.counts {
		display := s.displays[normalized]
		if display == "" {
			display = normalized
		}
		items = append(items, dedup.TrendingQuestion{Question: display, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Question < items[j].Question
		}
		return items[i].Count > items[j].Count
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

var _ dedup.TrendStore = (*MemoryStore)(nil)
