package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// ProfileRepository provides PostgreSQL-backed facial profile storage with an
// optional in-memory HNSW index over one backend's embeddings.
type ProfileRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(pool *Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

const profileColumns = `id, identity_id, is_complete, quality_score, confidence_score,
	enrolled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*database.FacialProfile, error) {
	var p database.FacialProfile
	var enrolledAt sql.NullTime
	if err := row.Scan(&p.ID, &p.IdentityID, &p.IsComplete, &p.QualityScore, &p.ConfidenceScore,
		&enrolledAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if enrolledAt.Valid {
		t := enrolledAt.Time
		p.EnrolledAt = &t
	}
	p.Embeddings = make(database.Embeddings)
	return &p, nil
}

// GetProfile returns an identity's profile with captures and embeddings, nil if not found.
func (r *ProfileRepository) GetProfile(ctx context.Context, identityID string) (*database.FacialProfile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM facial_profiles WHERE identity_id = $1`, identityID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	captures, err := r.getCaptures(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Captures = captures

	byProfile, err := r.getEmbeddings(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	if e, ok := byProfile[p.ID]; ok {
		p.Embeddings = e
	}
	return p, nil
}

func (r *ProfileRepository) getCaptures(ctx context.Context, profileID string) (map[database.Angle]*database.PoseCapture, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, angle, image_ref, brightness, sharpness, contrast, quality_score,
		       detection_confidence, face_detected, captured_at
		FROM pose_captures
		WHERE profile_id = $1
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	captures := make(map[database.Angle]*database.PoseCapture)
	for rows.Next() {
		var c database.PoseCapture
		var angle string
		if err := rows.Scan(&c.ID, &angle, &c.ImageRef, &c.Brightness, &c.Sharpness, &c.Contrast,
			&c.QualityScore, &c.DetectionConfidence, &c.FaceDetected, &c.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		c.Angle = database.Angle(angle)
		captures[c.Angle] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}
	return captures, nil
}

func (r *ProfileRepository) getEmbeddings(ctx context.Context, profileIDs []string) (map[string]database.Embeddings, error) {
	result := make(map[string]database.Embeddings, len(profileIDs))
	if len(profileIDs) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT profile_id, backend, embedding
		FROM profile_embeddings
		WHERE profile_id = ANY($1::uuid[])
	`, pq.Array(profileIDs))
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var profileID, backend string
		var vec pgvector.Vector
		if err := rows.Scan(&profileID, &backend, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if result[profileID] == nil {
			result[profileID] = make(database.Embeddings)
		}
		result[profileID][backend] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return result, nil
}

// ListCompleteProfiles returns complete profiles with embeddings, ordered by
// created_at then identity_id. Captures are not loaded.
func (r *ProfileRepository) ListCompleteProfiles(ctx context.Context) ([]database.FacialProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM facial_profiles
		WHERE is_complete
		ORDER BY created_at, identity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query complete profiles: %w", err)
	}
	defer rows.Close()

	var profiles []database.FacialProfile
	var ids []string
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	byProfile, err := r.getEmbeddings(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if e, ok := byProfile[profiles[i].ID]; ok {
			profiles[i].Embeddings = e
		}
	}
	return profiles, nil
}

// CountProfiles returns the number of profiles and how many are complete.
func (r *ProfileRepository) CountProfiles(ctx context.Context) (int, int, error) {
	var total, complete int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_complete) FROM facial_profiles
	`).Scan(&total, &complete)
	if err != nil {
		return 0, 0, fmt.Errorf("count profiles: %w", err)
	}
	return total, complete, nil
}

// SaveProfile upserts the profile and replaces its captures and embeddings in one transaction.
func (r *ProfileRepository) SaveProfile(ctx context.Context, profile *database.FacialProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var enrolledAt any
	if profile.EnrolledAt != nil {
		enrolledAt = *profile.EnrolledAt
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO facial_profiles (id, identity_id, is_complete, quality_score, confidence_score, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity_id) DO UPDATE SET
			is_complete = EXCLUDED.is_complete,
			quality_score = EXCLUDED.quality_score,
			confidence_score = EXCLUDED.confidence_score,
			enrolled_at = EXCLUDED.enrolled_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, profile.ID, profile.IdentityID, profile.IsComplete, profile.QualityScore, profile.ConfidenceScore, enrolledAt,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM pose_captures WHERE profile_id = $1", profile.ID); err != nil {
		return fmt.Errorf("delete captures: %w", err)
	}
	for _, angle := range profile.CapturedAngles() {
		c := profile.Captures[angle]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CapturedAt.IsZero() {
			c.CapturedAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pose_captures (id, profile_id, angle, image_ref, brightness, sharpness, contrast,
			                           quality_score, detection_confidence, face_detected, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, c.ID, profile.ID, string(angle), c.ImageRef, c.Brightness, c.Sharpness, c.Contrast,
			c.QualityScore, c.DetectionConfidence, c.FaceDetected, c.CapturedAt)
		if err != nil {
			return fmt.Errorf("insert capture %s: %w", angle, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM profile_embeddings WHERE profile_id = $1", profile.ID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	for _, backend := range profile.Embeddings.Backends() {
		vec := profile.Embeddings[backend]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO profile_embeddings (profile_id, backend, embedding, dim)
			VALUES ($1, $2, $3, $4)
		`, profile.ID, backend, pgvector.NewVector(vec), len(vec))
		if err != nil {
			return fmt.Errorf("insert embedding %s: %w", backend, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile: %w", err)
	}

	r.syncHNSW(profile)
	return nil
}

// DeleteProfile removes a profile; captures and embeddings cascade.
func (r *ProfileRepository) DeleteProfile(ctx context.Context, identityID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM facial_profiles WHERE identity_id = $1", identityID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx != nil {
		idx.Delete(identityID)
	}
	return nil
}

// EnableHNSW builds (or loads from path) an HNSW index over the backend's profile embeddings.
func (r *ProfileRepository) EnableHNSW(ctx context.Context, backend, path string) error {
	r.hnswMu.Lock()
	r.hnswIndex = database.NewHNSWIndex(backend)
	r.hnswIndexPath = path
	r.hnswMu.Unlock()

	if path != "" {
		profiles, err := r.ListCompleteProfiles(ctx)
		if err != nil {
			return err
		}
		ids := make([]string, len(profiles))
		for i := range profiles {
			ids[i] = profiles[i].IdentityID
		}
		if err := r.hnswIndex.Load(path, ids); err != nil {
			log.Printf("HNSW index %s unusable, rebuilding: %v", path, err)
		} else if !r.hnswIndex.IsEmpty() {
			return nil
		}
	}
	return r.RebuildHNSW(ctx)
}

// RebuildHNSW rebuilds the in-memory index from all complete profiles.
func (r *ProfileRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx == nil {
		return errors.New("HNSW index not enabled")
	}

	profiles, err := r.ListCompleteProfiles(ctx)
	if err != nil {
		return err
	}
	return idx.BuildFromProfiles(profiles)
}

// HNSWCount returns the number of identities in the index.
func (r *ProfileRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// HNSWIndex returns the index, nil unless EnableHNSW succeeded.
func (r *ProfileRepository) HNSWIndex() *database.HNSWIndex {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswIndex
}

// SaveHNSWIndex persists the index if a path is configured.
func (r *ProfileRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	idx, path := r.hnswIndex, r.hnswIndexPath
	r.hnswMu.RUnlock()
	if idx == nil || path == "" {
		return nil
	}
	return idx.SaveWithMetadata(path)
}

func (r *ProfileRepository) syncHNSW(profile *database.FacialProfile) {
	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx == nil {
		return
	}
	vec := profile.Embeddings[idx.Backend()]
	if profile.IsComplete && len(vec) > 0 {
		idx.Add(profile.IdentityID, vec)
	} else {
		idx.Delete(profile.IdentityID)
	}
}

var (
	_ database.ProfileWriter = (*ProfileRepository)(nil)
	_ database.HNSWRebuilder = (*ProfileRepository)(nil)
)
