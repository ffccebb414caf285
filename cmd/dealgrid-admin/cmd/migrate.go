package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/dealgrid/api/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

func init() {
	migrateCmd.PersistentFlags().String("db", "", "Database URL (env: DATABASE_URL)")
	migrateCmd.PersistentFlags().String("dir", "migrations", "Migrations directory")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(ctx context.Context, r *migrations.Runner) error {
				return r.Up(ctx)
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(ctx context.Context, r *migrations.Runner) error {
				return r.Down(ctx)
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, func(ctx context.Context, r *migrations.Runner) error {
				return r.Status(ctx)
			})
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, statusCmd)
}

func withRunner(cmd *cobra.Command, fn func(context.Context, *migrations.Runner) error) error {
	dbURL, _ := cmd.Flags().GetString("db")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return fmt.Errorf("database URL required: use --db or set DATABASE_URL")
	}

	dir, _ := cmd.Flags().GetString("dir")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	return fn(ctx, migrations.NewRunner(db, dir))
}
