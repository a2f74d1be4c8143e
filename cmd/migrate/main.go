package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/samirrijal/geodash/internal/adapters/postgres"
	"github.com/samirrijal/geodash/internal/pkg/config"
	"github.com/samirrijal/geodash/internal/pkg/logging"
	"github.com/samirrijal/geodash/migrations"
)

func main() {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back the GeoDash database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(cmd.Context(), func(db *sql.DB) error {
					return goose.UpContext(cmd.Context(), db, ".")
				})
			},
		},
		&cobra.Command{
			Use:   "down [version]",
			Short: "Roll back the last migration, or down to version",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(cmd.Context(), func(db *sql.DB) error {
					if len(args) == 0 {
						return goose.DownContext(cmd.Context(), db, ".")
					}
					v, err := strconv.ParseInt(args[0], 10, 64)
					if err != nil {
						return fmt.Errorf("version %q: %w", args[0], err)
					}
					return goose.DownToContext(cmd.Context(), db, ".", v)
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDB(cmd.Context(), func(db *sql.DB) error {
					return goose.StatusContext(cmd.Context(), db, ".")
				})
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

// withDB opens the pool, wraps it for goose and runs fn.
func withDB(ctx context.Context, fn func(*sql.DB) error) error {
	cfg, err := config.Load("geodash-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text")

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn(sqlDB)
}
