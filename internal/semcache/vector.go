package semcache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"

	"helmsman/internal/logging"
)

// SimilarityThreshold is the minimum cosine similarity for a semantic hit.
const SimilarityThreshold = 0.90

// Embedder turns a question into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the semantic fallback behind the exact cache: questions are
// embedded and matched against prior answers with pgvector cosine distance,
// scoped to the same tenant, toolset and context plan.
type VectorIndex struct {
	db       *sql.DB
	embedder Embedder
	ttl      time.Duration
	logger   logging.Logger
}

func NewVectorIndex(db *sql.DB, embedder Embedder, ttl time.Duration, logger logging.Logger) *VectorIndex {
	return &VectorIndex{db: db, embedder: embedder, ttl: ttl, logger: logger}
}

// Lookup returns the closest stored answer at or above the similarity
// threshold. Any failure is a miss.
func (v *VectorIndex) Lookup(ctx context.Context, tenantID string, key Key) (string, bool) {
	embedding, err := v.embedder.Embed(ctx, NormalizeQuestion(key.Question))
	if err != nil {
		cacheErrors.WithLabelValues("embed").Inc()
		v.logger.WithError(err).Debug("Embedding failed, skipping semantic lookup")
		return "", false
	}

	var (
		answer     string
		similarity float64
	)
	err = v.db.QueryRowContext(ctx, `
		SELECT answer, 1 - (embedding <=> $1) AS similarity
		FROM helmsman.cached_answers
		WHERE tenant_id = $2
		  AND language = $3
		  AND toolset_digest = $4
		  AND plan_digest = $5
		  AND expires_at > NOW()
		ORDER BY embedding <=> $1
		LIMIT 1
	`, pgvector.NewVector(embedding), tenantID, key.Language, key.ToolsetDigest, key.PlanDigest).
		Scan(&answer, &similarity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		cacheErrors.WithLabelValues("vector_get").Inc()
		v.logger.WithError(err).Debug("Semantic lookup failed, treating as miss")
		return "", false
	}
	if similarity < SimilarityThreshold {
		return "", false
	}
	return answer, true
}

// Store indexes an answer under the question's embedding. Failures are
// logged and dropped.
func (v *VectorIndex) Store(ctx context.Context, tenantID string, key Key, answer string) {
	embedding, err := v.embedder.Embed(ctx, NormalizeQuestion(key.Question))
	if err != nil {
		cacheErrors.WithLabelValues("embed").Inc()
		v.logger.WithError(err).Debug("Embedding failed, skipping semantic store")
		return
	}

	_, err = v.db.ExecContext(ctx, `
		INSERT INTO helmsman.cached_answers
			(digest, tenant_id, language, toolset_digest, plan_digest, question, answer, embedding, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW() + $9::interval)
		ON CONFLICT (digest) DO UPDATE SET
			answer = EXCLUDED.answer,
			embedding = EXCLUDED.embedding,
			expires_at = EXCLUDED.expires_at
	`, key.Digest(), tenantID, key.Language, key.ToolsetDigest, key.PlanDigest,
		NormalizeQuestion(key.Question), answer, pgvector.NewVector(embedding), v.ttl.String())
	if err != nil {
		cacheErrors.WithLabelValues("vector_set").Inc()
		v.logger.WithError(err).Debug("Semantic store failed")
	}
}
