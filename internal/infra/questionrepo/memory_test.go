package questionrepo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
)

func TestMemoryStoreFindByIDsPreservesOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		if err := store.Create(ctx, dedup.Record{ID: ids[i], Text: "q", OccurrenceCount: 1}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.FindByIDs(ctx, dedup.GlobalScope(), []uuid.UUID{ids[2], uuid.New(), ids[0]})
	if err != nil {
		t.Fatalf("find by ids: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != ids[2] || got[1].ID != ids[0] {
		t.Fatalf("records out of requested order: %v", got)
	}
}

func TestMemoryStoreScopesAreSeparate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	lessonID := uuid.New()

	id := uuid.New()
	rec := dedup.Record{ID: id, LessonID: &lessonID, Text: "lesson question", OccurrenceCount: 1}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, found, _ := store.FindByID(ctx, dedup.GlobalScope(), id); found {
		t.Fatal("lesson record visible in global scope")
	}
	if _, found, _ := store.FindByID(ctx, dedup.LessonScope(lessonID), id); !found {
		t.Fatal("lesson record not found in lesson scope")
	}
}

func TestMemoryStoreFindMissingVectorOldestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		if err := store.Create(ctx, dedup.Record{ID: ids[i], Text: "q", OccurrenceCount: 1, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.FinalizeVector(ctx, dedup.GlobalScope(), ids[0], ids[0]); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	orphans, err := store.FindMissingVector(ctx, dedup.GlobalScope(), 1)
	if err != nil {
		t.Fatalf("find missing vector: %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("expected 1 orphan, got %d", len(orphans))
	}
	if orphans[0].ID != ids[1] {
		t.Fatalf("expected oldest unfinalized record first, got %s", orphans[0].ID)
	}
}

func TestMemoryStoreFindMissingVectorSkipsBypassed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	orphanID := uuid.New()
	if err := store.Create(ctx, dedup.Record{ID: orphanID, Text: "saga leftover", OccurrenceCount: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, dedup.Record{ID: uuid.New(), Text: "admin seeded", OccurrenceCount: 1, DedupBypassed: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	orphans, err := store.FindMissingVector(ctx, dedup.GlobalScope(), 10)
	if err != nil {
		t.Fatalf("find missing vector: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != orphanID {
		t.Fatalf("expected only the saga leftover, got %v", orphans)
	}
}

func TestMemoryStoreIncrementOccurrence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id := uuid.New()
	if err := store.Create(ctx, dedup.Record{ID: id, Text: "q", OccurrenceCount: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.IncrementOccurrence(ctx, dedup.GlobalScope(), id)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if updated.OccurrenceCount != 2 {
		t.Fatalf("expected count 2, got %d", updated.OccurrenceCount)
	}

	if _, err := store.IncrementOccurrence(ctx, dedup.GlobalScope(), uuid.New()); err == nil {
		t.Fatal("expected error for missing record")
	}
}
