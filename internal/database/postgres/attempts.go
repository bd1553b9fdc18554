package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
)

// AttemptRepository stores the recognition audit log.
type AttemptRepository struct {
	pool *Pool
}

// NewAttemptRepository creates a new PostgreSQL attempt repository.
func NewAttemptRepository(pool *Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// SaveAttempt appends an attempt. Similarities are stored as parallel arrays
// ordered by backend name.
func (r *AttemptRepository) SaveAttempt(ctx context.Context, a *database.RecognitionAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	backends := make([]string, 0, len(a.Similarities))
	for name := range a.Similarities {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	scores := make([]float64, len(backends))
	for i, name := range backends {
		scores[i] = a.Similarities[name]
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO recognition_attempts (id, mode, status, confidence, threshold,
		                                  similarity_backends, similarity_scores,
		                                  claimed_identity, matched_identity, source, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, string(a.Mode), string(a.Status), a.Confidence, a.Threshold,
		pq.Array(backends), pq.Array(scores),
		a.ClaimedIdentity, a.MatchedIdentity, a.Source, a.Reason, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the most recent attempts, newest first.
func (r *AttemptRepository) ListAttempts(ctx context.Context, limit int) ([]database.RecognitionAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, mode, status, confidence, threshold, similarity_backends, similarity_scores,
		       claimed_identity, matched_identity, source, reason, created_at
		FROM recognition_attempts
		ORDER BY created_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []database.RecognitionAttempt
	for rows.Next() {
		var a database.RecognitionAttempt
		var mode, status string
		var backends []string
		var scores []float64
		if err := rows.Scan(&a.ID, &mode, &status, &a.Confidence, &a.Threshold,
			pq.Array(&backends), pq.Array(&scores),
			&a.ClaimedIdentity, &a.MatchedIdentity, &a.Source, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Mode = database.AttemptMode(mode)
		a.Status = database.AttemptStatus(status)
		a.Similarities = make(map[string]float64, len(backends))
		for i, name := range backends {
			if i < len(scores) {
				a.Similarities[name] = scores[i]
			}
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

var _ database.AttemptWriter = (*AttemptRepository)(nil)
