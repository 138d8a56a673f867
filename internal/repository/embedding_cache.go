package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingCacheRepository persists reference embeddings by image content
// hash and model name.
type EmbeddingCacheRepository struct {
	pool PgxPool
}

func NewEmbeddingCacheRepository(pool PgxPool) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{pool: pool}
}

func (r *EmbeddingCacheRepository) GetEmbedding(ctx context.Context, contentHash, model string) ([]float64, bool, error) {
	query := `
		SELECT embedding
		FROM reference_embeddings
		WHERE content_hash = $1 AND model = $2
	`

	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, query, contentHash, model).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get reference embedding: %w", err)
	}

	return fromVector(vec), true, nil
}

func (r *EmbeddingCacheRepository) PutEmbedding(ctx context.Context, contentHash, model, identityID string, embedding []float64) error {
	query := `
		INSERT INTO reference_embeddings (content_hash, model, identity_id, embedding, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (content_hash, model)
		DO UPDATE SET identity_id = EXCLUDED.identity_id
	`

	if _, err := r.pool.Exec(ctx, query, contentHash, model, identityID, toVector(embedding)); err != nil {
		return fmt.Errorf("put reference embedding: %w", err)
	}

	return nil
}

// Prune removes cached embeddings for a model that are not in keep.
func (r *EmbeddingCacheRepository) Prune(ctx context.Context, model string, keep []string) (int64, error) {
	query := `
		DELETE FROM reference_embeddings
		WHERE model = $1 AND NOT (content_hash = ANY($2))
	`

	// a nil slice encodes as NULL, which would match nothing
	if keep == nil {
		keep = []string{}
	}

	tag, err := r.pool.Exec(ctx, query, model, keep)
	if err != nil {
		return 0, fmt.Errorf("prune reference embeddings: %w", err)
	}

	return tag.RowsAffected(), nil
}
