package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the approximate nearest neighbour index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the HNSW index from enrolled profiles",
	Long: `Rebuild the in-memory HNSW index over the primary backend's embeddings
and persist it to HNSW_INDEX_PATH when set. The index narrows identification
candidates when the policy sets ann_candidates.

Examples:
  face-attendance index rebuild
  face-attendance index rebuild --backend dlib`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)

	indexRebuildCmd.Flags().String("backend", "", "Backend to index (default: highest policy weight)")
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	backend := mustGetString(cmd, "backend")

	cfg := config.Load()
	if backend == "" {
		policy, err := config.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return err
		}
		backend = policy.PrimaryBackend()
	}

	ctx := context.Background()
	if err := postgres.Initialize(ctx, &cfg.Database, backend); err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer postgres.GetGlobalPool().Close()

	rebuilder := database.GetProfileHNSWRebuilder()
	if rebuilder == nil {
		return errors.New("HNSW index not available")
	}

	start := time.Now()
	if err := rebuilder.RebuildHNSW(ctx); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	fmt.Printf("Indexed %d profiles on %s in %s\n", rebuilder.HNSWCount(), backend, time.Since(start).Round(time.Millisecond))

	if cfg.Database.HNSWIndexPath == "" {
		fmt.Println("HNSW_INDEX_PATH not set, index not persisted")
		return nil
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	fmt.Printf("Saved to %s\n", cfg.Database.HNSWIndexPath)
	return nil
}
