package questionrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
	"github.com/quizmentor/quizmentor/pkg/util"
)

// PostgresStore implements dedup.RecordStore over the questions and
// lesson_questions tables. The scope argument picks the table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a pending record. VectorID stays NULL until finalized.
func (r *PostgresStore) Create(ctx context.Context, rec dedup.Record) error {
	if rec.LessonID != nil {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO lesson_questions (id, lesson_id, question_text, response_label, response_explanation, occurrence_count, vector_id, dedup_bypassed, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8, $9)
		`, rec.ID, *rec.LessonID, rec.Text, rec.Label, rec.Explanation, rec.OccurrenceCount, rec.DedupBypassed, rec.CreatedAt, rec.UpdatedAt)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO questions (id, canonical_text, explanation, truth_label, occurrence_count, vector_id, dedup_bypassed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6, $7, $8)
	`, rec.ID, rec.Text, rec.Explanation, rec.Label, rec.OccurrenceCount, rec.DedupBypassed, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// FindByID fetches one record from the scope's pool.
func (r *PostgresStore) FindByID(ctx context.Context, scope dedup.Scope, id uuid.UUID) (dedup.Record, bool, error) {
	row := r.pool.QueryRow(ctx, selectQuery(scope)+` WHERE id = $1 LIMIT 1`, id)
	rec, err := scanRecord(row, scope)
	if err == pgx.ErrNoRows {
		return dedup.Record{}, false, nil
	}
	if err != nil {
		return dedup.Record{}, false, err
	}
	return rec, true, nil
}

// FindByIDs materializes a set of ids, preserving the input ordering and
// skipping ids without a record.
func (r *PostgresStore) FindByIDs(ctx context.Context, scope dedup.Scope, ids []uuid.UUID) ([]dedup.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, selectQuery(scope)+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]dedup.Record, len(ids))
	for rows.Next() {
		rec, err := scanRecord(rows, scope)
		if err != nil {
			return nil, err
		}
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]dedup.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// IncrementOccurrence bumps the counter with a read-modify-write. Concurrent
// bumps on one record can lose updates; the counter is an engagement metric,
// not a correctness-critical value.
func (r *PostgresStore) IncrementOccurrence(ctx context.Context, scope dedup.Scope, id uuid.UUID) (dedup.Record, error) {
	rec, found, err := r.FindByID(ctx, scope, id)
	if err != nil {
		return dedup.Record{}, err
	}
	if !found {
		return dedup.Record{}, fmt.Errorf("record %s not found", id)
	}
	rec.OccurrenceCount++
	rec.UpdatedAt = util.NowUTC()

	if _, err := r.pool.Exec(ctx, `UPDATE `+table(scope)+` SET occurrence_count = $1, updated_at = $2 WHERE id = $3`,
		rec.OccurrenceCount, rec.UpdatedAt, rec.ID); err != nil {
		return dedup.Record{}, err
	}
	return rec, nil
}

// FinalizeVector writes the vector id back onto the record.
func (r *PostgresStore) FinalizeVector(ctx context.Context, scope dedup.Scope, id, vectorID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE `+table(scope)+` SET vector_id = $1, updated_at = $2 WHERE id = $3`,
		vectorID, util.NowUTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

// FindMissingVector lists vector-less records, oldest first. Dedup-bypassed
// records are vector-less by design and stay out.
func (r *PostgresStore) FindMissingVector(ctx context.Context, scope dedup.Scope, limit int) ([]dedup.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, selectQuery(scope)+` WHERE vector_id IS NULL AND dedup_bypassed = FALSE ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dedup.Record
	for rows.Next() {
		rec, err := scanRecord(rows, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a record.
func (r *PostgresStore) Delete(ctx context.Context, scope dedup.Scope, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM `+table(scope)+` WHERE id = $1`, id)
	return err
}

func table(scope dedup.Scope) string {
	if scope.IsGlobal() {
		return "questions"
	}
	return "lesson_questions"
}

func selectQuery(scope dedup.Scope) string {
	if scope.IsGlobal() {
		return `SELECT id, canonical_text, explanation, truth_label, occurrence_count, vector_id, dedup_bypassed, created_at, updated_at FROM questions`
	}
	return `SELECT id, lesson_id, question_text, response_explanation, response_label, occurrence_count, vector_id, dedup_bypassed, created_at, updated_at FROM lesson_questions`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, scope dedup.Scope) (dedup.Record, error) {
	var rec dedup.Record
	if scope.IsGlobal() {
		if err := row.Scan(&rec.ID, &rec.Text, &rec.Explanation, &rec.Label, &rec.OccurrenceCount, &rec.VectorID, &rec.DedupBypassed, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return dedup.Record{}, err
		}
		return rec, nil
	}
	var lessonID uuid.UUID
	if err := row.Scan(&rec.ID, &lessonID, &rec.Text, &rec.Explanation, &rec.Label, &rec.OccurrenceCount, &rec.VectorID, &rec.DedupBypassed, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return dedup.Record{}, err
	}
	rec.LessonID = &lessonID
	return rec, nil
}

var _ dedup.RecordStore = (*PostgresStore)(nil)
