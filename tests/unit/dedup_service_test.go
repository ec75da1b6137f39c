package unit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	"github.com/quizmentor/quizmentor/internal/infra/questionrepo"
	"github.com/quizmentor/quizmentor/internal/infra/trendstore"
	"github.com/quizmentor/quizmentor/internal/infra/vectorindex"
	apperrors "github.com/quizmentor/quizmentor/pkg/errors"
	"github.com/quizmentor/quizmentor/pkg/metrics"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubEmbedder returns canned vectors keyed by canonical text.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls = append(s.calls, text)
	if s.err != nil {
		return nil, s.err
	}
	vec, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no canned vector for %q", text)
	}
	return vec, nil
}

type passthroughCorrector struct{}

func (passthroughCorrector) Correct(_ context.Context, text string) string { return text }

// rewordingCorrector rewrites the same input differently on every call, the
// way a live grammar model can.
type rewordingCorrector struct {
	calls int
}

func (c *rewordingCorrector) Correct(_ context.Context, text string) string {
	c.calls++
	return fmt.Sprintf("%s variant %d", text, c.calls)
}

type stubClassifier struct {
	classification dedup.Classification
	err            error
	calls          int
	lastContext    string
}

func (s *stubClassifier) Classify(_ context.Context, _ string, context string) (dedup.Classification, error) {
	s.calls++
	s.lastContext = context
	if s.err != nil {
		return dedup.Classification{}, s.err
	}
	return s.classification, nil
}

type brokenIndex struct{}

func (brokenIndex) Upsert(_ context.Context, _ uuid.UUID, _ []float32, _ string) error {
	return errors.New("index unavailable")
}

func (brokenIndex) Query(_ context.Context, _ []float32, _ int, _ string) ([]dedup.VectorMatch, error) {
	return nil, errors.New("index unavailable")
}

func (brokenIndex) Delete(_ context.Context, _ uuid.UUID) error {
	return errors.New("index unavailable")
}

// finalizeFailStore fails the vectorId write-back while delegating the rest.
type finalizeFailStore struct {
	*questionrepo.MemoryStore
}

func (s *finalizeFailStore) FinalizeVector(_ context.Context, _ dedup.Scope, _, _ uuid.UUID) error {
	return errors.New("record store unavailable")
}

type failingTrendStore struct{}

func (failingTrendStore) IncrementAsk(_ context.Context, _, _ string) error {
	return errors.New("trend store unavailable")
}

func (failingTrendStore) TopQuestions(_ context.Context, _ int) ([]dedup.TrendingQuestion, error) {
	return nil, errors.New("trend store unavailable")
}

func defaultClassifier() *stubClassifier {
	return &stubClassifier{classification: dedup.Classification{
		Label:       true,
		Explanation: "matches the source material",
		Usage:       metrics.TokenUsage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}}
}

// Canonical forms of the questions used below, after normalization.
const (
	canonPhotosynthesis = "what photosynthesis"
	canonParaphrase     = "explain photosynthesis please"
	canonVolcano        = "how volcanoes erupt"
)

func lifecycleVectors() map[string][]float32 {
	return map[string][]float32{
		canonPhotosynthesis: {1, 0, 0},
		canonParaphrase:     {0.9, 0.43589, 0}, // cosine 0.9 against the first
		canonVolcano:        {0, 0, 1},
	}
}

func TestResolveLifecycle(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()
	embedder := &stubEmbedder{vectors: lifecycleVectors()}
	classifier := defaultClassifier()
	trends := trendstore.NewMemoryStore()

	svc := dedup.NewService(dedup.Config{}, store, index, embedder, passthroughCorrector{}, classifier, trends, newTestLogger())
	ctx := context.Background()

	first, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, first.Status)
	require.NotNil(t, first.Record)
	require.Equal(t, 1, first.Record.OccurrenceCount)
	require.Equal(t, canonPhotosynthesis, first.Record.Text)
	require.NotNil(t, first.Record.VectorID)
	require.Equal(t, first.Record.ID, *first.Record.VectorID)
	require.True(t, first.Record.Label)
	require.NotNil(t, first.TokenUsage)
	require.Equal(t, 16, first.TokenUsage.TotalTokens)

	second, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "  what IS photosynthesis  ", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusDuplicate, second.Status)
	require.Equal(t, first.Record.ID, second.Record.ID)
	require.Equal(t, 2, second.Record.OccurrenceCount)
	require.InDelta(t, 1.0, second.Similarity, 1e-6)

	third, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "Explain photosynthesis please", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusDuplicate, third.Status)
	require.Equal(t, first.Record.ID, third.Record.ID)
	require.Equal(t, 3, third.Record.OccurrenceCount)
	require.GreaterOrEqual(t, third.Similarity, 0.85)

	fourth, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "How do volcanoes erupt?", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, fourth.Status)
	require.NotEqual(t, first.Record.ID, fourth.Record.ID)
	require.Equal(t, 1, fourth.Record.OccurrenceCount)

	// Only the two novel submissions hit the classifier.
	require.Equal(t, 2, classifier.calls)
	require.Equal(t, 2, index.Len())

	// Counters key on each submission's normalized form, so the paraphrase
	// counts under its own entry even though it resolved as a duplicate.
	top, err := svc.Trending(ctx)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, int64(2), top[0].Count)
	require.Equal(t, "What is photosynthesis?", top[0].Question)
}

func TestResolveLessonScopesAreIsolated(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()
	embedder := &stubEmbedder{vectors: lifecycleVectors()}

	svc := dedup.NewService(dedup.Config{}, store, index, embedder, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())
	ctx := context.Background()
	lessonA := dedup.LessonScope(uuid.New())
	lessonB := dedup.LessonScope(uuid.New())

	inA, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: lessonA})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, inA.Status)

	inB, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: lessonB})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, inB.Status)
	require.NotEqual(t, inA.Record.ID, inB.Record.ID)
	require.Equal(t, 1, inB.Record.OccurrenceCount)

	again, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: lessonA})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusDuplicate, again.Status)
	require.Equal(t, inA.Record.ID, again.Record.ID)
	require.Equal(t, 2, again.Record.OccurrenceCount)
}

func TestResolveStaleIndexHitCreatesNothing(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()
	require.NoError(t, index.Upsert(context.Background(), uuid.New(), []float32{1, 0, 0}, dedup.GlobalScopeTag))

	embedder := &stubEmbedder{vectors: map[string][]float32{canonPhotosynthesis: {1, 0, 0}}}
	classifier := defaultClassifier()

	svc := dedup.NewService(dedup.Config{}, store, index, embedder, passthroughCorrector{}, classifier, trendstore.NewMemoryStore(), newTestLogger())

	res, err := svc.Resolve(context.Background(), dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusDuplicateStale, res.Status)
	require.Nil(t, res.Record)
	require.InDelta(t, 1.0, res.Similarity, 1e-6)

	require.Equal(t, 0, classifier.calls)
	orphans, err := store.FindMissingVector(context.Background(), dedup.GlobalScope(), 10)
	require.NoError(t, err)
	require.Empty(t, orphans)
}

func TestResolveRejectsEmptyQuestion(t *testing.T) {
	svc := dedup.NewService(dedup.Config{}, questionrepo.NewMemoryStore(), vectorindex.NewMemoryIndex(), &stubEmbedder{}, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())

	_, err := svc.Resolve(context.Background(), dedup.ResolveRequest{Text: "   ", Scope: dedup.GlobalScope()})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "invalid_input"))
}

func TestResolveEmbedderFailureIsTransient(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("upstream timeout")}
	svc := dedup.NewService(dedup.Config{}, questionrepo.NewMemoryStore(), vectorindex.NewMemoryIndex(), embedder, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())

	_, err := svc.Resolve(context.Background(), dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "transient_provider"))
}

func TestResolveClassifierFailureCreatesNothing(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	embedder := &stubEmbedder{vectors: lifecycleVectors()}
	classifier := &stubClassifier{err: errors.New("upstream timeout")}

	svc := dedup.NewService(dedup.Config{}, store, vectorindex.NewMemoryIndex(), embedder, passthroughCorrector{}, classifier, trendstore.NewMemoryStore(), newTestLogger())

	_, err := svc.Resolve(context.Background(), dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "transient_provider"))

	_, found, err := store.FindByID(context.Background(), dedup.GlobalScope(), uuid.Nil)
	require.NoError(t, err)
	require.False(t, found)
	orphans, err := store.FindMissingVector(context.Background(), dedup.GlobalScope(), 10)
	require.NoError(t, err)
	require.Empty(t, orphans)
}

func TestResolveLessonScopeSurvivesIndexOutage(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	embedder := &stubEmbedder{vectors: lifecycleVectors()}

	svc := dedup.NewService(dedup.Config{}, store, brokenIndex{}, embedder, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())

	lesson := dedup.LessonScope(uuid.New())
	res, err := svc.Resolve(context.Background(), dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: lesson})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, res.Status)
	require.NotNil(t, res.Record)
	// The upsert failed, so the record stays vector-less for later repair.
	require.Nil(t, res.Record.VectorID)

	stored, found, err := store.FindByID(context.Background(), lesson, res.Record.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Nil(t, stored.VectorID)
}

func TestResolveOrphanFallbackMatchesAndBackfills(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()

	orphanID := uuid.New()
	require.NoError(t, store.Create(context.Background(), dedup.Record{
		ID:              orphanID,
		Text:            canonPhotosynthesis,
		OccurrenceCount: 1,
	}))

	embedder := &stubEmbedder{vectors: lifecycleVectors()}
	classifier := defaultClassifier()
	svc := dedup.NewService(dedup.Config{}, store, index, embedder, passthroughCorrector{}, classifier, trendstore.NewMemoryStore(), newTestLogger())

	res, err := svc.Resolve(context.Background(), dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusDuplicate, res.Status)
	require.Equal(t, orphanID, res.Record.ID)
	require.Equal(t, 2, res.Record.OccurrenceCount)
	require.InDelta(t, 1.0, res.Similarity, 1e-6)
	require.Equal(t, 0, classifier.calls)

	// The scan backfilled the orphan's vector and write-back.
	require.Equal(t, 1, index.Len())
	stored, found, err := store.FindByID(context.Background(), dedup.GlobalScope(), orphanID)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, stored.VectorID)
	require.Equal(t, orphanID, *stored.VectorID)
}

func TestResolveNovelCompensatesFailedWriteBack(t *testing.T) {
	store := &finalizeFailStore{MemoryStore: questionrepo.NewMemoryStore()}
	index := vectorindex.NewMemoryIndex()
	embedder := &stubEmbedder{vectors: lifecycleVectors()}

	svc := dedup.NewService(dedup.Config{}, store, index, embedder, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())

	res, err := svc.Resolve(context.Background(), dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, res.Status)
	require.Nil(t, res.Record.VectorID)
	// The compensating delete removed the vector again.
	require.Equal(t, 0, index.Len())
}

func TestResolveSurvivesTrendStoreFailure(t *testing.T) {
	embedder := &stubEmbedder{vectors: lifecycleVectors()}
	svc := dedup.NewService(dedup.Config{}, questionrepo.NewMemoryStore(), vectorindex.NewMemoryIndex(), embedder, passthroughCorrector{}, defaultClassifier(), failingTrendStore{}, newTestLogger())

	res, err := svc.Resolve(context.Background(), dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, res.Status)
}

func TestRelatedPreservesRankAndSkipsStale(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()
	ctx := context.Background()

	exactID := uuid.New()
	nearID := uuid.New()
	require.NoError(t, store.Create(ctx, dedup.Record{ID: exactID, Text: "exact match", OccurrenceCount: 1}))
	require.NoError(t, store.Create(ctx, dedup.Record{ID: nearID, Text: "near match", OccurrenceCount: 1}))

	require.NoError(t, index.Upsert(ctx, exactID, []float32{1, 0, 0}, dedup.GlobalScopeTag))
	require.NoError(t, index.Upsert(ctx, nearID, []float32{0.9, 0.43589, 0}, dedup.GlobalScopeTag))
	// Index entry whose record was deleted; it must be skipped.
	require.NoError(t, index.Upsert(ctx, uuid.New(), []float32{0.95, 0.31225, 0}, dedup.GlobalScopeTag))

	embedder := &stubEmbedder{vectors: map[string][]float32{canonPhotosynthesis: {1, 0, 0}}}
	svc := dedup.NewService(dedup.Config{}, store, index, embedder, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())

	related, err := svc.Related(ctx, "What is photosynthesis?", dedup.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, related, 2)
	require.Equal(t, exactID, related[0].Record.ID)
	require.Equal(t, nearID, related[1].Record.ID)
	require.Greater(t, related[0].Score, related[1].Score)
}

func TestRelatedRejectsEmptyQuery(t *testing.T) {
	svc := dedup.NewService(dedup.Config{}, questionrepo.NewMemoryStore(), vectorindex.NewMemoryIndex(), &stubEmbedder{}, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())

	_, err := svc.Related(context.Background(), "  ", dedup.GlobalScope(), 5)
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "invalid_input"))
}

func TestCreateDirectSkipsVectorAndDedup(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()
	embedder := &stubEmbedder{vectors: lifecycleVectors()}

	svc := dedup.NewService(dedup.Config{}, store, index, embedder, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())

	rec, err := svc.CreateDirect(context.Background(), dedup.DirectInsert{
		Text:        "Water boils at 100C at sea level",
		Label:       true,
		Explanation: "standard pressure boiling point",
		Scope:       dedup.GlobalScope(),
	})
	require.NoError(t, err)
	require.Nil(t, rec.VectorID)
	require.Equal(t, 1, rec.OccurrenceCount)
	require.Equal(t, 0, index.Len())
	require.Empty(t, embedder.calls)

	stored, found, err := store.FindByID(context.Background(), dedup.GlobalScope(), rec.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Water boils at 100C at sea level", stored.Text)
}

func TestDirectInsertIsNeverMatchedBySimilarity(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()
	embedder := &stubEmbedder{vectors: lifecycleVectors()}

	svc := dedup.NewService(dedup.Config{}, store, index, embedder, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())
	ctx := context.Background()

	direct, err := svc.CreateDirect(ctx, dedup.DirectInsert{
		Text:        "what photosynthesis",
		Label:       true,
		Explanation: "seeded by an administrator",
		Scope:       dedup.GlobalScope(),
	})
	require.NoError(t, err)
	require.True(t, direct.DedupBypassed)

	// The same question resolves as novel: the direct insert must not be
	// picked up by the orphan fallback scan.
	res, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, res.Status)
	require.NotEqual(t, direct.ID, res.Record.ID)

	// The direct insert never gains a vector and its count never moves.
	stored, found, err := store.FindByID(ctx, dedup.GlobalScope(), direct.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Nil(t, stored.VectorID)
	require.Equal(t, 1, stored.OccurrenceCount)
	require.Equal(t, 1, index.Len())
}

func TestTrendingKeyedByNormalizedText(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		canonPhotosynthesis + " variant 1": {1, 0, 0},
		canonPhotosynthesis + " variant 2": {1, 0, 0},
	}}
	trends := trendstore.NewMemoryStore()

	svc := dedup.NewService(dedup.Config{}, store, index, embedder, &rewordingCorrector{}, defaultClassifier(), trends, newTestLogger())
	ctx := context.Background()

	first, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "What is photosynthesis?", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusNovel, first.Status)

	second, err := svc.Resolve(ctx, dedup.ResolveRequest{Text: "what is photosynthesis", Scope: dedup.GlobalScope()})
	require.NoError(t, err)
	require.Equal(t, dedup.StatusDuplicate, second.Status)

	// The corrector produced two different canonical texts, but both
	// submissions count under the one normalized key.
	top, err := svc.Trending(ctx)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, int64(2), top[0].Count)
	require.Equal(t, "What is photosynthesis?", top[0].Question)
}

func TestDeleteRemovesRecordAndVector(t *testing.T) {
	store := questionrepo.NewMemoryStore()
	index := vectorindex.NewMemoryIndex()
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, store.Create(ctx, dedup.Record{ID: id, Text: "stored question", OccurrenceCount: 1}))
	require.NoError(t, index.Upsert(ctx, id, []float32{1, 0, 0}, dedup.GlobalScopeTag))

	svc := dedup.NewService(dedup.Config{}, store, index, &stubEmbedder{}, passthroughCorrector{}, defaultClassifier(), trendstore.NewMemoryStore(), newTestLogger())

	require.NoError(t, svc.Delete(ctx, dedup.GlobalScope(), id))
	require.Equal(t, 0, index.Len())
	_, found, err := store.FindByID(ctx, dedup.GlobalScope(), id)
	require.NoError(t, err)
	require.False(t, found)
}

func TestClassifierReceivesLessonContext(t *testing.T) {
	embedder := &stubEmbedder{vectors: lifecycleVectors()}
	classifier := defaultClassifier()
	svc := dedup.NewService(dedup.Config{}, questionrepo.NewMemoryStore(), vectorindex.NewMemoryIndex(), embedder, passthroughCorrector{}, classifier, trendstore.NewMemoryStore(), newTestLogger())

	_, err := svc.Resolve(context.Background(), dedup.ResolveRequest{
		Text:    "What is photosynthesis?",
		Scope:   dedup.LessonScope(uuid.New()),
		Context: "Lesson 3: plants convert light into chemical energy.",
	})
	require.NoError(t, err)
	require.Equal(t, 1, classifier.calls)
	require.Equal(t, "Lesson 3: plants convert light into chemical energy.", classifier.lastContext)
}
