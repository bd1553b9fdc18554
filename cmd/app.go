package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// app bundles everything a command needs. Backends are only contacted when
// the command asks for the engine.
type app struct {
	cfg        *config.Config
	policy     config.RecognitionPolicy
	profiles   database.ProfileWriter
	reader     database.ProfileReader
	attempts   database.AttemptWriter
	engine     *recognition.Engine
	aggregator *enrollment.Aggregator
}

func newApp(ctx context.Context, withEngine bool) (*app, error) {
	cfg := config.Load()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load recognition policy: %w", err)
	}

	hnswBackend := ""
	if policy.ANNCandidates > 0 {
		hnswBackend = policy.PrimaryBackend()
	}
	if err := postgres.Initialize(ctx, &cfg.Database, hnswBackend); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	a := &app{cfg: cfg, policy: policy}
	if a.profiles, err = database.GetProfileWriter(ctx); err != nil {
		return nil, err
	}
	if a.reader, err = database.GetProfileReader(ctx); err != nil {
		return nil, err
	}
	if a.attempts, err = database.GetAttemptWriter(ctx); err != nil {
		return nil, err
	}

	if !withEngine {
		return a, nil
	}

	detectors := detector.NewRegistry(ctx, cfg.Backends)
	embedders := embedder.NewRegistry(ctx, cfg.Backends)
	if len(embedders.Available()) == 0 {
		log.Printf("no embedding backend available, recognition will report no evidence")
	}

	a.engine, err = recognition.NewEngine(detectors, embedders, policy)
	if err != nil {
		return nil, err
	}
	if rebuilder := database.GetProfileHNSWRebuilder(); rebuilder != nil {
		a.engine.WithIndex(rebuilder.HNSWIndex())
	}
	a.aggregator = enrollment.NewAggregator(a.engine, a.profiles)
	return a, nil
}

// close persists the ANN index and releases the connection pool.
func (a *app) close() {
	if rebuilder := database.GetProfileHNSWRebuilder(); rebuilder != nil {
		if err := rebuilder.SaveHNSWIndex(); err != nil {
			log.Printf("failed to save HNSW index: %v", err)
		}
	}
	if postgres.IsAvailable() {
		postgres.GetGlobalPool().Close()
	}
}

// logAttempt appends the verdict to the audit log. With log_all_attempts
// disabled only recognized verdicts are kept.
func (a *app) logAttempt(ctx context.Context, v *recognition.Verdict, mode database.AttemptMode, claimed, source string) {
	if !a.policy.LogAllAttempts && !v.Recognized {
		return
	}
	if err := a.attempts.SaveAttempt(ctx, v.Attempt(mode, claimed, source)); err != nil {
		log.Printf("failed to log recognition attempt: %v", err)
	}
}

// readImage reads an image file and returns its bytes with an absolute reference.
func readImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a CLI argument
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	ref, err := filepath.Abs(path)
	if err != nil {
		ref = path
	}
	return data, ref, nil
}
