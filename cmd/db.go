package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runDBMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations and profile counts",
	Args:  cobra.NoArgs,
	RunE:  runDBStatus,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbStatusCmd)
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	applied, err := postgres.GetGlobalPool().MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Schema up to date (%d migrations applied)\n", len(applied))
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	if !postgres.IsAvailable() || !database.IsInitialized() {
		return errors.New("PostgreSQL backend not initialized")
	}
	applied, err := postgres.GetGlobalPool().MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Migrations:")
	for _, m := range applied {
		fmt.Printf("  %s\n", m)
	}

	total, complete, err := a.reader.CountProfiles(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Profiles: %d (%d complete)\n", total, complete)
	return nil
}
