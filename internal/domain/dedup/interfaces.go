package dedup

import (
	"context"

	"github.com/google/uuid"
)

// Embedder turns canonical text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Corrector rewrites text into well-formed prose. Implementations fail open:
// on any provider error they return the input unchanged, so there is no
// error in the signature.
type Corrector interface {
	Correct(ctx context.Context, text string) string
}

// Classifier produces a truth label and explanation for a question,
// optionally grounded in supplied context material.
type Classifier interface {
	Classify(ctx context.Context, question, context string) (Classification, error)
}

// VectorIndex is the shared-namespace similarity index holding both global
// and lesson-scoped vectors. Scope separation happens purely through the
// scopeTag metadata filter; every query carries one.
type VectorIndex interface {
	Upsert(ctx context.Context, id uuid.UUID, vector []float32, scopeTag string) error
	Query(ctx context.Context, vector []float32, topK int, scopeTag string) ([]VectorMatch, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecordStore persists question records for both pools. The scope argument
// routes to the right table; record and vector entries share ids.
type RecordStore interface {
	Create(ctx context.Context, rec Record) error
	FindByID(ctx context.Context, scope Scope, id uuid.UUID) (Record, bool, error)
	// FindByIDs returns records in the order of the given ids, silently
	// skipping ids with no record.
	FindByIDs(ctx context.Context, scope Scope, ids []uuid.UUID) ([]Record, error)
	// IncrementOccurrence is a read-modify-write; concurrent bumps on the
	// same record may lose updates, which is acceptable for this counter.
	IncrementOccurrence(ctx context.Context, scope Scope, id uuid.UUID) (Record, error)
	FinalizeVector(ctx context.Context, scope Scope, id, vectorID uuid.UUID) error
	// FindMissingVector lists records whose vector was never stored,
	// bounded by limit, oldest first. Dedup-bypassed records are excluded:
	// they are vector-less on purpose, not failed saga leftovers.
	FindMissingVector(ctx context.Context, scope Scope, limit int) ([]Record, error)
	Delete(ctx context.Context, scope Scope, id uuid.UUID) error
}

// TrendStore keeps best-effort ask counters keyed by normalized text, so
// counts stay stable regardless of how the grammar model rewords a
// submission. Failures are logged and never affect resolve outcomes.
type TrendStore interface {
	IncrementAsk(ctx context.Context, normalized, display string) error
	TopQuestions(ctx context.Context, limit int) ([]TrendingQuestion, error)
}
