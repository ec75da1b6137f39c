package dedup

import (
	"time"

	"github.com/google/uuid"

	"github.com/quizmentor/quizmentor/pkg/metrics"
)

// Status classifies the outcome of a resolve call.
type Status string

const (
	// StatusNovel means no stored question was close enough; a new record was created.
	StatusNovel Status = "novel"
	// StatusDuplicate means an existing record matched and its occurrence count moved.
	StatusDuplicate Status = "duplicate"
	// StatusDuplicateStale marks an index hit whose backing record is gone.
	// Nothing is created or incremented; the submission is treated as seen.
	StatusDuplicateStale Status = "duplicate_stale"
)

// GlobalScopeTag is the metadata tag carried by global-pool vectors.
const GlobalScopeTag = "global"

// Scope selects the duplicate-detection pool: the global pool or one lesson.
type Scope struct {
	lessonID *uuid.UUID
}

// GlobalScope addresses the shared question pool.
func GlobalScope() Scope {
	return Scope{}
}

// LessonScope addresses a single lesson's pool.
func LessonScope(lessonID uuid.UUID) Scope {
	return Scope{lessonID: &lessonID}
}

// IsGlobal reports whether the scope is the global pool.
func (s Scope) IsGlobal() bool {
	return s.lessonID == nil
}

// LessonID returns the lesson identifier for lesson scopes.
func (s Scope) LessonID() (uuid.UUID, bool) {
	if s.lessonID == nil {
		return uuid.UUID{}, false
	}
	return *s.lessonID, true
}

// Tag is the metadata value stored alongside vectors in this scope.
func (s Scope) Tag() string {
	if s.lessonID == nil {
		return GlobalScopeTag
	}
	return s.lessonID.String()
}

// Record is the engine's view of a stored question in either pool.
// Global records live in the questions table, lesson records in
// lesson_questions; LessonID is nil for the former.
type Record struct {
	ID              uuid.UUID  `json:"id"`
	LessonID        *uuid.UUID `json:"lessonId,omitempty"`
	Text            string     `json:"text"`
	Label           bool       `json:"label"`
	Explanation     string     `json:"explanation"`
	OccurrenceCount int        `json:"occurrenceCount"`
	VectorID        *uuid.UUID `json:"vectorId,omitempty"`
	// DedupBypassed marks administrative direct inserts. They stay
	// vector-less permanently, so the orphan fallback scan must skip them.
	DedupBypassed bool      `json:"dedupBypassed,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Scope derives the pool a record belongs to.
func (r Record) Scope() Scope {
	if r.LessonID == nil {
		return GlobalScope()
	}
	return LessonScope(*r.LessonID)
}

// ResolveRequest carries one submitted question into the engine.
type ResolveRequest struct {
	Text  string
	Scope Scope
	// Context is optional material (lesson content) handed to the classifier
	// when the question turns out to be novel.
	Context string
}

// Resolution is the engine's decision for one submission.
type Resolution struct {
	Status        Status              `json:"status"`
	Record        *Record             `json:"record,omitempty"`
	Similarity    float64             `json:"similarity"`
	CanonicalText string              `json:"canonicalText"`
	TokenUsage    *metrics.TokenUsage `json:"tokenUsage,omitempty"`
}

// DirectInsert is the administrative creation payload that bypasses
// deduplication entirely. No vector is ever computed for it.
type DirectInsert struct {
	Text        string
	Label       bool
	Explanation string
	Scope       Scope
}

// RankedRecord pairs a record with its index similarity score.
type RankedRecord struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// VectorMatch is a single index query hit, ordered by descending score.
type VectorMatch struct {
	ID    uuid.UUID
	Score float64
	Scope string
}

// Classification is the generative model's verdict on a question.
type Classification struct {
	Label       bool
	Explanation string
	Usage       metrics.TokenUsage
}

// TrendingQuestion represents a frequently submitted question.
type TrendingQuestion struct {
	Question string `json:"question"`
	Count    int64  `json:"count"`
}
