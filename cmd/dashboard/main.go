package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/afero"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/geodash/internal/adapters/http"
	"github.com/samirrijal/geodash/internal/adapters/memory"
	natsadapter "github.com/samirrijal/geodash/internal/adapters/nats"
	"github.com/samirrijal/geodash/internal/adapters/postgres"
	s3store "github.com/samirrijal/geodash/internal/adapters/s3"
	"github.com/samirrijal/geodash/internal/adapters/valkey"
	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/ports"
	"github.com/samirrijal/geodash/internal/core/usecases"
	"github.com/samirrijal/geodash/internal/pkg/config"
	"github.com/samirrijal/geodash/internal/pkg/logging"
	"github.com/samirrijal/geodash/internal/pkg/metrics"
	"github.com/samirrijal/geodash/internal/pkg/password"
	"github.com/samirrijal/geodash/internal/pkg/staging"
	"github.com/samirrijal/geodash/internal/pkg/telemetry"
	"github.com/samirrijal/geodash/internal/workflows"
)

var version = "dev"

func main() {
	cfg, err := config.Load("geodash")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache. Typed nils must not leak into the interfaces below.
	var (
		chartCache ports.CacheService
		cachePing  http.Pinger
	)
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, charts will not be cached", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		chartCache, cachePing = cache, cache
	}

	// Sessions
	var sessions ports.SessionStore
	switch {
	case cfg.Auth.SessionStore == "valkey" && cache != nil:
		sessions = valkey.NewSessionStore(cache)
	default:
		if cfg.Auth.SessionStore == "valkey" {
			slog.Warn("falling back to in-memory sessions; sign-ins will not survive a restart")
		}
		mem := memory.NewSessionStore()
		go mem.RunSweeper(ctx, time.Minute)
		sessions = mem
	}

	// NATS
	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, record events disabled", "error", err)
		pub = nil
	} else {
		defer pub.Close()
		events = pub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	// Object storage and staging
	objects, err := s3store.New(ctx, cfg.Media)
	if err != nil {
		log.Fatalf("object storage: %v", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		slog.Warn("media bucket check failed", "bucket", cfg.Media.Bucket, "error", err)
	}
	stage, err := staging.New(afero.NewOsFs(), cfg.Media.StagingDir)
	if err != nil {
		log.Fatalf("staging: %v", err)
	}

	// Repos
	principalRepo := postgres.NewPrincipalRepo(db)
	recordRepo := postgres.NewRecordRepo(db)
	mediaRepo := postgres.NewMediaRepo(db)

	// Derivative pipeline: Temporal saga, else the NATS job queue, else inline.
	processor := usecases.NewMediaProcessor(mediaRepo, objects)
	var pipeline ports.MediaPipeline
	switch {
	case cfg.Temporal.Enabled:
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			log.Fatalf("temporal client: %v", err)
		}
		defer tc.Close()
		pipeline = workflows.NewPipeline(tc, cfg.Temporal.TaskQueue)
		slog.Info("media derivatives via temporal", "task_queue", cfg.Temporal.TaskQueue)
	case pub != nil:
		pipeline = pub
		slog.Info("media derivatives via nats job queue")
	default:
		pipeline = usecases.NewInlinePipeline(processor, 2*time.Minute)
		slog.Info("media derivatives inline")
	}

	// Use cases
	hasher := password.NewHasher(cfg.Auth.BcryptCost)
	authSvc := usecases.NewAuthService(principalRepo, sessions, hasher, usecases.AuthOptions{
		SessionTTL:        cfg.Auth.SessionTTL,
		AllowRegistration: cfg.Auth.AllowRegistration,
	})
	chartSvc := usecases.NewChartService(recordRepo, chartCache, cfg.Map.ChartDays, cfg.Map.ChartTTLSecs)
	mapSvc := usecases.NewMapService(recordRepo, usecases.MapDefaults{
		Center:      domain.GeoPoint{Lat: cfg.Map.DefaultLat, Lon: cfg.Map.DefaultLon},
		Zoom:        cfg.Map.DefaultZoom,
		DensityZoom: cfg.Map.DensityZoom,
	})
	geoSvc := usecases.NewGeolocationService(authSvc)
	mediaSvc := usecases.NewMediaService(mediaRepo, recordRepo, objects, stage, pipeline, usecases.MediaLimits{
		MaxBytes:  cfg.Media.MaxUploadBytes,
		MaxWidth:  cfg.Media.MaxWidth,
		MaxHeight: cfg.Media.MaxHeight,
		MaxPixels: cfg.Media.MaxPixels,
	})
	recordSvc := usecases.NewRecordService(recordRepo, events, chartSvc, mediaSvc)

	created, err := authSvc.BootstrapAdmin(ctx, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword)
	if err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}
	if created {
		slog.Info("bootstrap admin created", "email", cfg.Auth.BootstrapEmail)
	}

	deps := &http.Dependencies{
		Auth:        authSvc,
		Records:     recordSvc,
		Charts:      chartSvc,
		Maps:        mapSvc,
		Geolocation: geoSvc,
		Media:       mediaSvc,
		NATS:        natsConn,
		DB:          db,
		Cache:       cachePing,
		Options: http.Options{
			CookieName:     cfg.Auth.CookieName,
			SecureCookies:  cfg.Auth.SecureCookies,
			SessionTTL:     cfg.Auth.SessionTTL,
			LoginRateLimit: cfg.Auth.LoginRateLimit,
			RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
			AllowOrigins:   cfg.Server.AllowOrigins,
			TileURL:        cfg.Map.TileURL,
			Attribution:    cfg.Map.Attribution,
			Version:        version,
		},
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    int(cfg.Media.MaxUploadBytes) + 1<<20, // upload plus form overhead
		ErrorHandler: http.ErrorHandler,
		AppName:      "GeoDash",
	})
	app.Use(recover.New())

	http.SetupRoutes(app, deps)

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		sweep := time.NewTicker(10 * time.Minute)
		defer sweep.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Stat())
			case now := <-sweep.C:
				// staged copies outlive a request only when the process died mid-upload
				if n, err := stage.Sweep(time.Hour, now); err != nil {
					slog.Warn("staging sweep failed", "error", err)
				} else if n > 0 {
					slog.Info("staging sweep removed stale uploads", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("dashboard starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
