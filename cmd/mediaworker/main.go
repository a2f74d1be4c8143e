package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	natsadapter "github.com/samirrijal/geodash/internal/adapters/nats"
	"github.com/samirrijal/geodash/internal/adapters/postgres"
	s3store "github.com/samirrijal/geodash/internal/adapters/s3"
	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/usecases"
	"github.com/samirrijal/geodash/internal/pkg/config"
	"github.com/samirrijal/geodash/internal/pkg/logging"
	"github.com/samirrijal/geodash/internal/pkg/telemetry"
	"github.com/samirrijal/geodash/internal/workflows"
)

func main() {
	cfg, err := config.Load("geodash-mediaworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	objects, err := s3store.New(ctx, cfg.Media)
	if err != nil {
		log.Fatalf("object storage: %v", err)
	}

	processor := usecases.NewMediaProcessor(postgres.NewMediaRepo(db), objects)

	g, ctx := errgroup.WithContext(ctx)

	// Temporal saga worker
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			log.Fatalf("temporal client: %v", err)
		}
		defer tc.Close()

		w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
		workflows.Register(w, &workflows.MediaActivities{Processor: processor})

		g.Go(func() error {
			slog.Info("temporal media worker started", "task_queue", cfg.Temporal.TaskQueue)
			interrupt := make(chan interface{})
			go func() {
				<-ctx.Done()
				close(interrupt)
			}()
			return w.Run(interrupt)
		})
	}

	// NATS job queue consumer
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		if !cfg.Temporal.Enabled {
			log.Fatalf("nats: %v", err)
		}
		slog.Warn("nats unavailable, serving temporal only", "error", err)
	} else {
		defer sub.Close()
		err := sub.SubscribeMediaJobs(ctx, func(ctx context.Context, job *domain.MediaJob) error {
			return processor.Process(ctx, job)
		})
		if err != nil {
			log.Fatalf("subscribe media jobs: %v", err)
		}
		slog.Info("nats media consumer started", "subject", natsadapter.MediaJobSubject)
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("media worker stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("media worker stopped")
}
