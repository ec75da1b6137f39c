package dedup

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/quizmentor/quizmentor/pkg/errors"
	"github.com/quizmentor/quizmentor/pkg/util"
)

// Service exposes the duplicate-aware question pipeline.
type Service interface {
	Resolve(ctx context.Context, req ResolveRequest) (Resolution, error)
	Related(ctx context.Context, query string, scope Scope, limit int) ([]RankedRecord, error)
	CreateDirect(ctx context.Context, req DirectInsert) (Record, error)
	Delete(ctx context.Context, scope Scope, id uuid.UUID) error
	Trending(ctx context.Context) ([]TrendingQuestion, error)
}

type service struct {
	cfg        Config
	store      RecordStore
	index      VectorIndex
	embedder   Embedder
	corrector  Corrector
	classifier Classifier
	trends     TrendStore
	logger     *slog.Logger
}

// NewService wires up the dedup engine. All external capabilities are
// injected; the engine holds no hidden clients.
func NewService(cfg Config, store RecordStore, index VectorIndex, embedder Embedder, corrector Corrector, classifier Classifier, trends TrendStore, logger *slog.Logger) Service {
	return &service{
		cfg:        cfg,
		store:      store,
		index:      index,
		embedder:   embedder,
		corrector:  corrector,
		classifier: classifier,
		trends:     trends,
		logger:     logger.With("component", "dedup.service"),
	}
}

// Resolve runs the full pipeline: canonicalize, embed, match against the
// scope's pool, then either bump an existing record or create a new one.
func (s *service) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Resolution{}, apperrors.Wrap("invalid_input", "question cannot be empty", nil)
	}

	normalized := normalizeText(text)
	canonical := s.corrector.Correct(ctx, normalized)
	if strings.TrimSpace(canonical) == "" {
		return Resolution{}, apperrors.Wrap("invalid_input", "question contains no searchable content", nil)
	}

	vector, err := s.embedder.Embed(ctx, canonical)
	if err != nil {
		return Resolution{}, apperrors.Wrap("transient_provider", "embedding failed", err)
	}
	if len(vector) == 0 {
		return Resolution{}, apperrors.Wrap("transient_provider", "embedding response empty", nil)
	}

	threshold := s.cfg.threshold(req.Scope)

	matches, err := s.index.Query(ctx, vector, s.cfg.topK(req.Scope), req.Scope.Tag())
	if err != nil {
		// Index unusable: the global pool still gets the linear fallback
		// below; lesson scope proceeds straight to creation.
		s.logger.Warn("vector index query failed", "scope", req.Scope.Tag(), "error", err)
		matches = nil
	}

	if len(matches) > 0 && matches[0].Score >= threshold {
		return s.resolveDuplicate(ctx, req.Scope, matches[0], canonical, normalized, text)
	}

	if req.Scope.IsGlobal() {
		if orphan, score, found := s.scanOrphans(ctx, vector, threshold); found {
			updated, err := s.store.IncrementOccurrence(ctx, GlobalScope(), orphan.ID)
			if err != nil {
				return Resolution{}, apperrors.Wrap("dedup_error", "occurrence update failed", err)
			}
			s.bumpTrending(ctx, normalized, text)
			return Resolution{Status: StatusDuplicate, Record: &updated, Similarity: score, CanonicalText: canonical}, nil
		}
	}

	return s.createNovel(ctx, req, canonical, normalized, text, vector)
}

func (s *service) resolveDuplicate(ctx context.Context, scope Scope, best VectorMatch, canonical, normalized, display string) (Resolution, error) {
	rec, found, err := s.store.FindByID(ctx, scope, best.ID)
	if err != nil {
		return Resolution{}, apperrors.Wrap("dedup_error", "record lookup failed", err)
	}
	if !found {
		// Index entry with no backing record. Creating a record here would
		// mask a real duplicate, so the submission is acknowledged without
		// touching storage.
		s.logger.Warn("vector match has no backing record", "id", best.ID, "scope", scope.Tag(), "score", best.Score)
		s.bumpTrending(ctx, normalized, display)
		return Resolution{Status: StatusDuplicateStale, Similarity: best.Score, CanonicalText: canonical}, nil
	}
	updated, err := s.store.IncrementOccurrence(ctx, scope, rec.ID)
	if err != nil {
		return Resolution{}, apperrors.Wrap("dedup_error", "occurrence update failed", err)
	}
	s.bumpTrending(ctx, normalized, display)
	return Resolution{Status: StatusDuplicate, Record: &updated, Similarity: best.Score, CanonicalText: canonical}, nil
}

// scanOrphans compares the new vector against global records whose vector
// was never stored, backfilling their index entries along the way. Only the
// global pool runs this; every step is best effort.
func (s *service) scanOrphans(ctx context.Context, vector []float32, threshold float64) (Record, float64, bool) {
	orphans, err := s.store.FindMissingVector(ctx, GlobalScope(), s.cfg.orphanScanLimit())
	if err != nil {
		s.logger.Warn("orphan scan failed", "error", err)
		return Record{}, 0, false
	}

	var (
		best      Record
		bestScore float64
		found     bool
	)
	for _, orphan := range orphans {
		orphanVec, err := s.embedder.Embed(ctx, orphan.Text)
		if err != nil {
			s.logger.Warn("orphan embedding failed", "id", orphan.ID, "error", err)
			continue
		}

		if err := s.index.Upsert(ctx, orphan.ID, orphanVec, GlobalScopeTag); err != nil {
			s.logger.Warn("orphan vector backfill failed", "id", orphan.ID, "error", err)
		} else if err := s.store.FinalizeVector(ctx, GlobalScope(), orphan.ID, orphan.ID); err != nil {
			s.logger.Warn("orphan vector finalize failed", "id", orphan.ID, "error", err)
		}

		score := cosineSimilarity(vector, orphanVec)
		if score >= threshold && (!found || score > bestScore) {
			best = orphan
			bestScore = score
			found = true
		}
	}
	return best, bestScore, found
}

// createNovel persists a new record as a small saga: pending record first,
// then the vector, then the vectorId write-back. A failed upsert leaves the
// record vector-less for the orphan scan to repair; a failed write-back
// deletes the vector again so the two stores do not drift apart.
func (s *service) createNovel(ctx context.Context, req ResolveRequest, canonical, normalized, display string, vector []float32) (Resolution, error) {
	classification, err := s.classifier.Classify(ctx, canonical, req.Context)
	if err != nil {
		return Resolution{}, apperrors.Wrap("transient_provider", "classification failed", err)
	}

	now := util.NowUTC()
	rec := Record{
		ID:              uuid.New(),
		Text:            canonical,
		Label:           classification.Label,
		Explanation:     classification.Explanation,
		OccurrenceCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if lessonID, ok := req.Scope.LessonID(); ok {
		rec.LessonID = &lessonID
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return Resolution{}, apperrors.Wrap("dedup_error", "record create failed", err)
	}

	if err := s.index.Upsert(ctx, rec.ID, vector, req.Scope.Tag()); err != nil {
		s.logger.Warn("vector upsert failed, record left without vector", "id", rec.ID, "error", err)
	} else if err := s.store.FinalizeVector(ctx, req.Scope, rec.ID, rec.ID); err != nil {
		s.logger.Warn("vector finalize failed, removing vector", "id", rec.ID, "error", err)
		if delErr := s.index.Delete(ctx, rec.ID); delErr != nil {
			s.logger.Warn("compensating vector delete failed", "id", rec.ID, "error", delErr)
		}
	} else {
		vectorID := rec.ID
		rec.VectorID = &vectorID
	}

	s.bumpTrending(ctx, normalized, display)

	resolution := Resolution{Status: StatusNovel, Record: &rec, CanonicalText: canonical}
	if !classification.Usage.IsZero() {
		usage := classification.Usage
		resolution.TokenUsage = &usage
	}
	return resolution, nil
}

// Related returns records from the scope ranked by similarity to the query.
func (s *service) Related(ctx context.Context, query string, scope Scope, limit int) ([]RankedRecord, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, apperrors.Wrap("invalid_input", "query cannot be empty", nil)
	}
	if limit <= 0 {
		limit = s.cfg.topK(scope)
	}

	canonical := s.corrector.Correct(ctx, normalizeText(q))
	vector, err := s.embedder.Embed(ctx, canonical)
	if err != nil {
		return nil, apperrors.Wrap("transient_provider", "embedding failed", err)
	}

	matches, err := s.index.Query(ctx, vector, limit, scope.Tag())
	if err != nil {
		return nil, apperrors.Wrap("dedup_error", "vector index query failed", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	records, err := s.store.FindByIDs(ctx, scope, ids)
	if err != nil {
		return nil, apperrors.Wrap("dedup_error", "record lookup failed", err)
	}
	byID := make(map[uuid.UUID]Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	out := make([]RankedRecord, 0, len(matches))
	for _, m := range matches {
		rec, ok := byID[m.ID]
		if !ok {
			s.logger.Warn("related match has no backing record", "id", m.ID, "scope", scope.Tag())
			continue
		}
		out = append(out, RankedRecord{Record: rec, Score: m.Score})
	}
	return out, nil
}

// CreateDirect writes a record without computing a vector. The record is
// marked dedup-bypassed so the orphan scan never backfills it; it can never
// be matched by similarity resolution and callers are trusted to know that.
func (s *service) CreateDirect(ctx context.Context, req DirectInsert) (Record, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Record{}, apperrors.Wrap("invalid_input", "question cannot be empty", nil)
	}

	now := util.NowUTC()
	rec := Record{
		ID:              uuid.New(),
		Text:            text,
		Label:           req.Label,
		Explanation:     req.Explanation,
		OccurrenceCount: 1,
		DedupBypassed:   true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if lessonID, ok := req.Scope.LessonID(); ok {
		rec.LessonID = &lessonID
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return Record{}, apperrors.Wrap("dedup_error", "record create failed", err)
	}
	s.logger.Warn("direct insert created vector-less record", "id", rec.ID, "scope", req.Scope.Tag())
	return rec, nil
}

// Delete removes a record and its vector entry. The vector goes first so a
// failure cannot leave the index pointing at a missing record.
func (s *service) Delete(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := s.index.Delete(ctx, id); err != nil {
		return apperrors.Wrap("dedup_error", "vector delete failed", err)
	}
	if err := s.store.Delete(ctx, scope, id); err != nil {
		return apperrors.Wrap("dedup_error", "record delete failed", err)
	}
	return nil
}

// Trending lists the most submitted questions.
func (s *service) Trending(ctx context.Context) ([]TrendingQuestion, error) {
	top, err := s.trends.TopQuestions(ctx, s.cfg.topTrending())
	if err != nil {
		return nil, apperrors.Wrap("dedup_error", "failed to load trending questions", err)
	}
	return top, nil
}

func (s *service) bumpTrending(ctx context.Context, normalized, display string) {
	if s.trends == nil {
		return
	}
	if err := s.trends.IncrementAsk(ctx, normalized, display); err != nil {
		s.logger.Warn("trending increment failed", "error", err)
	}
}

func cosineSimilarity(a, b []float32) float64 {
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
