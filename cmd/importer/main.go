package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samirrijal/geodash/internal/adapters/postgres"
	"github.com/samirrijal/geodash/internal/adapters/valkey"
	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/ports"
	"github.com/samirrijal/geodash/internal/core/usecases"
	"github.com/samirrijal/geodash/internal/pkg/config"
	"github.com/samirrijal/geodash/internal/pkg/logging"
	"github.com/samirrijal/geodash/internal/pkg/table"
)

const batchSize = 500

type options struct {
	file   string
	owner  string
	dryRun bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:   "importer --file records.csv --owner someone@example.com",
		Short: "Bulk-load geotagged records from CSV",
		Long: `Reads a CSV with the columns title, category, lat, lon and optionally
description, visibility and tags (semicolon separated), and upserts every
valid row as a record owned by --owner. Invalid rows are logged with their
line number and skipped. Rows get ids derived from their content, so running
the same file twice does not create duplicates.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "CSV file to import (- for stdin)")
	cmd.Flags().StringVarP(&opts.owner, "owner", "o", "", "email of the principal that will own the records")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "parse and validate only")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("owner")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load("geodash-importer")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	in := os.Stdin
	if opts.file != "-" {
		f, err := os.Open(opts.file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	rows, badRows, err := table.ReadRecords(in)
	if err != nil {
		return err
	}
	for _, re := range badRows {
		slog.Warn("skipping row", "line", re.Line, "error", re.Err)
	}
	slog.Info("csv parsed", "parsed", len(rows), "skipped", len(badRows))
	if opts.dryRun {
		return nil
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	owner, err := postgres.NewPrincipalRepo(db).GetByEmail(ctx, strings.ToLower(strings.TrimSpace(opts.owner)))
	if err != nil {
		return fmt.Errorf("owner %s: %w", opts.owner, err)
	}

	// Cached charts are rotated after the import when valkey is reachable.
	var cache ports.CacheService
	if c, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, cached charts expire on their own", "error", err)
	} else {
		defer c.Close()
		cache = c
	}
	recordRepo := postgres.NewRecordRepo(db)
	charts := usecases.NewChartService(recordRepo, cache, cfg.Map.ChartDays, cfg.Map.ChartTTLSecs)
	records := usecases.NewRecordService(recordRepo, nil, charts, nil)

	scope := domain.Scope{PrincipalID: owner.ID, Role: owner.Role}
	imported, rejected, err := importRows(ctx, records, scope, rows, batchSize)
	for _, re := range rejected {
		slog.Warn("skipping row", "line", re.Line, "error", re.Err)
	}
	if err != nil {
		return err
	}

	slog.Info("import complete", "owner", owner.Email, "imported", imported, "skipped", len(badRows)+len(rejected))
	return nil
}

type recordImporter interface {
	Import(ctx context.Context, scope domain.Scope, inputs []domain.RecordInput) (*usecases.ImportResult, error)
}

// importRows writes rows in batches of size and maps rows the service
// rejected back to their CSV lines.
func importRows(ctx context.Context, svc recordImporter, scope domain.Scope, rows []table.Row, size int) (int, []table.RowError, error) {
	var (
		imported int
		rejected []table.RowError
	)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batch := rows[start:end]
		res, err := svc.Import(ctx, scope, table.Inputs(batch))
		if err != nil {
			return imported, rejected, fmt.Errorf("lines %d-%d: %w", batch[0].Line, batch[len(batch)-1].Line, err)
		}
		for _, rj := range res.Rejected {
			rejected = append(rejected, table.RowError{Line: batch[rj.Index].Line, Err: rj.Err})
		}
		imported += res.Imported
		slog.Info("batch imported", "rows", res.Imported, "rejected", len(res.Rejected), "total", imported)
	}
	return imported, rejected, nil
}
