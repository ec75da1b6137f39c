package vectorindex

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
)

// PgvectorIndex implements dedup.VectorIndex on a pgvector table. Global and
// lesson vectors share the one table; the scope column is the metadata tag
// and every query filters on it.
type PgvectorIndex struct {
	pool *pgxpool.Pool
}

// NewPgvectorIndex constructs the index adapter.
func NewPgvectorIndex(pool *pgxpool.Pool) *PgvectorIndex {
	return &PgvectorIndex{pool: pool}
}

// Upsert writes or replaces the vector for an id.
func (x *PgvectorIndex) Upsert(ctx context.Context, id uuid.UUID, vector []float32, scopeTag string) error {
	_, err := x.pool.Exec(ctx, `
		INSERT INTO question_vectors (id, embedding, scope)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, scope = EXCLUDED.scope
	`, id, pgvector.NewVector(vector), scopeTag)
	return err
}

// Query returns up to topK matches within the scope, best first. Scores are
// cosine similarity in [-1, 1].
func (x *PgvectorIndex) Query(ctx context.Context, vector []float32, topK int, scopeTag string) ([]dedup.VectorMatch, error) {
	if topK <= 0 {
		topK = 1
	}
	rows, err := x.pool.Query(ctx, `
		SELECT id, scope, 1 - (embedding <=> $1) AS score
		FROM question_vectors
		WHERE scope = $2
		ORDER BY embedding <=> $1 ASC
		LIMIT $3
	`, pgvector.NewVector(vector), scopeTag, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []dedup.VectorMatch
	for rows.Next() {
		var m dedup.VectorMatch
		if err := rows.Scan(&m.ID, &m.Scope, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Delete removes the vector for an id. Deleting a missing id is not an error.
func (x *PgvectorIndex) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := x.pool.Exec(ctx, `DELETE FROM question_vectors WHERE id = $1`, id)
	return err
}

var _ dedup.VectorIndex = (*PgvectorIndex)(nil)
