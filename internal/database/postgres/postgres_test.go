//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testVector(dim int, offset float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = (float32(i) + offset) / float32(dim)
	}
	return v
}

func completeProfile(identityID string, offset float32) *database.FacialProfile {
	now := time.Now()
	p := &database.FacialProfile{
		IdentityID: identityID,
		Embeddings: database.Embeddings{
			"insightface": testVector(512, offset),
			"dlib":        testVector(128, offset),
		},
		Captures:        make(map[database.Angle]*database.PoseCapture),
		IsComplete:      true,
		QualityScore:    0.8,
		ConfidenceScore: 0.9,
		EnrolledAt:      &now,
	}
	for _, a := range database.Angles {
		p.Captures[a] = &database.PoseCapture{
			Angle:               a,
			ImageRef:            identityID + "/" + string(a) + ".jpg",
			QualityScore:        0.8,
			DetectionConfidence: 0.9,
			FaceDetected:        true,
			CapturedAt:          now,
		}
	}
	return p
}

func TestProfileRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewProfileRepository(pool)

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.GetProfile(ctx, "nobody")
		if err != nil {
			t.Fatalf("Failed to get profile: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil profile, got %+v", got)
		}
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		p := completeProfile("alice", 0)
		if err := repo.SaveProfile(ctx, p); err != nil {
			t.Fatalf("Failed to save profile: %v", err)
		}
		if p.ID == "" {
			t.Fatal("Expected profile ID to be assigned")
		}

		got, err := repo.GetProfile(ctx, "alice")
		if err != nil {
			t.Fatalf("Failed to get profile: %v", err)
		}
		if got == nil {
			t.Fatal("Expected profile, got nil")
		}
		if !got.IsComplete {
			t.Error("Expected complete profile")
		}
		if len(got.Captures) != len(database.Angles) {
			t.Errorf("Expected %d captures, got %d", len(database.Angles), len(got.Captures))
		}
		if len(got.Embeddings["insightface"]) != 512 {
			t.Errorf("Expected 512 dimensions, got %d", len(got.Embeddings["insightface"]))
		}
		if len(got.Embeddings["dlib"]) != 128 {
			t.Errorf("Expected 128 dimensions, got %d", len(got.Embeddings["dlib"]))
		}
		if got.EnrolledAt == nil {
			t.Error("Expected EnrolledAt to be set")
		}
	})

	t.Run("UpsertKeepsIdentity", func(t *testing.T) {
		p, _ := repo.GetProfile(ctx, "alice")
		createdAt := p.CreatedAt
		delete(p.Captures, database.AngleUpLeft)
		p.IsComplete = false
		p.EnrolledAt = nil
		if err := repo.SaveProfile(ctx, p); err != nil {
			t.Fatalf("Failed to save profile: %v", err)
		}

		got, _ := repo.GetProfile(ctx, "alice")
		if len(got.Captures) != len(database.Angles)-1 {
			t.Errorf("Expected %d captures, got %d", len(database.Angles)-1, len(got.Captures))
		}
		if !got.CreatedAt.Equal(createdAt) {
			t.Errorf("CreatedAt changed on upsert: %v -> %v", createdAt, got.CreatedAt)
		}
		if got.IsComplete || got.EnrolledAt != nil {
			t.Error("Expected incomplete profile without EnrolledAt")
		}
	})

	t.Run("ListCompleteOrder", func(t *testing.T) {
		for i, id := range []string{"carol", "bob"} {
			if err := repo.SaveProfile(ctx, completeProfile(id, float32(i+1))); err != nil {
				t.Fatalf("Failed to save %s: %v", id, err)
			}
		}

		profiles, err := repo.ListCompleteProfiles(ctx)
		if err != nil {
			t.Fatalf("Failed to list profiles: %v", err)
		}
		if len(profiles) != 2 {
			t.Fatalf("Expected 2 complete profiles, got %d", len(profiles))
		}
		if profiles[0].IdentityID != "carol" || profiles[1].IdentityID != "bob" {
			t.Errorf("Expected creation order [carol bob], got [%s %s]", profiles[0].IdentityID, profiles[1].IdentityID)
		}
		if !profiles[0].Embeddings.Has("insightface") {
			t.Error("Expected embeddings to be loaded")
		}
	})

	t.Run("Count", func(t *testing.T) {
		total, complete, err := repo.CountProfiles(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if total != 3 || complete != 2 {
			t.Errorf("Expected 3 total / 2 complete, got %d / %d", total, complete)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteProfile(ctx, "alice"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		got, err := repo.GetProfile(ctx, "alice")
		if err != nil {
			t.Fatalf("Failed to get profile: %v", err)
		}
		if got != nil {
			t.Error("Expected profile to be deleted")
		}
	})
}

func TestProfileRepositoryHNSW(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewProfileRepository(pool)

	for i, id := range []string{"p1", "p2", "p3"} {
		if err := repo.SaveProfile(ctx, completeProfile(id, float32(i*50))); err != nil {
			t.Fatalf("Failed to save %s: %v", id, err)
		}
	}

	path := t.TempDir() + "/profiles.hnsw"
	if err := repo.EnableHNSW(ctx, "insightface", path); err != nil {
		t.Fatalf("Failed to enable HNSW: %v", err)
	}
	if repo.HNSWCount() != 3 {
		t.Errorf("Expected 3 indexed profiles, got %d", repo.HNSWCount())
	}

	ids, _, err := repo.HNSWIndex().Search(testVector(512, 50), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "p2" {
		t.Errorf("Expected nearest p2, got %v", ids)
	}

	if err := repo.DeleteProfile(ctx, "p2"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if repo.HNSWCount() != 2 {
		t.Errorf("Expected 2 indexed profiles after delete, got %d", repo.HNSWCount())
	}

	if err := repo.SaveHNSWIndex(); err != nil {
		t.Fatalf("Failed to save index: %v", err)
	}
	meta, err := database.LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("Failed to load metadata: %v", err)
	}
	if meta.Backend != "insightface" || meta.ProfileCount != 2 {
		t.Errorf("Unexpected metadata %+v", meta)
	}
}

func TestAttemptRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewAttemptRepository(pool)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		a := &database.RecognitionAttempt{
			Mode:            database.ModeVerify,
			Status:          database.StatusSuccess,
			Confidence:      0.9,
			Threshold:       0.6,
			Similarities:    map[string]float64{"insightface": 0.91, "dlib": 0.85},
			ClaimedIdentity: fmt.Sprintf("user%d", i),
			MatchedIdentity: fmt.Sprintf("user%d", i),
			Source:          "test",
			CreatedAt:       base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.SaveAttempt(ctx, a); err != nil {
			t.Fatalf("Failed to save attempt: %v", err)
		}
	}

	got, err := repo.ListAttempts(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to list attempts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(got))
	}
	if got[0].ClaimedIdentity != "user2" {
		t.Errorf("Expected newest attempt first, got %s", got[0].ClaimedIdentity)
	}
	if got[0].Similarities["dlib"] != 0.85 {
		t.Errorf("Expected dlib similarity 0.85, got %v", got[0].Similarities["dlib"])
	}
	if got[0].Mode != database.ModeVerify || got[0].Status != database.StatusSuccess {
		t.Errorf("Unexpected mode/status %s/%s", got[0].Mode, got[0].Status)
	}
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	// Check migrations were applied
	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_face_profiles.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// Migrate is idempotent
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
}
