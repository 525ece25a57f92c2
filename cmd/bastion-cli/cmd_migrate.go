package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"bastion-server/internal/infrastructure/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long:  `Apply every bundled SQL migration that has not run yet. The database is created when missing.`,
	RunE:  runMigrateUp,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)

	migrateUpCmd.Flags().String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL (default: $DATABASE_URL)")
	migrateUpCmd.Flags().Duration("timeout", 2*time.Minute, "Migration timeout")
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	dsn, _ := cmd.Flags().GetString("database-url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if dsn == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}

	db, err := database.Connect(database.Config{DatabaseURL: dsn, CreateIfMissing: true})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		_ = database.Close(db)
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	fmt.Println("Applying migrations...")
	if err := database.AutoMigrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("Migrations applied")
	return nil
}
