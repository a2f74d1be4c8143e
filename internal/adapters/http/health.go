package http

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

const readyTimeout = 3 * time.Second

// HealthHandler is the liveness probe. It never touches a dependency.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Options.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": version,
		})
	}
}

// probe is one readiness check. Only required probes can fail readiness.
type probe struct {
	name     string
	required bool
	check    func(ctx context.Context) string
}

func pingProbe(p Pinger) func(ctx context.Context) string {
	return func(ctx context.Context) string {
		if p == nil {
			return "not configured"
		}
		if err := p.Ping(ctx); err != nil {
			return "error: " + err.Error()
		}
		return "ok"
	}
}

func (d *Dependencies) probes() []probe {
	return []probe{
		{name: "database", required: true, check: pingProbe(d.DB)},
		{name: "cache", check: pingProbe(d.Cache)},
		{name: "nats", check: func(context.Context) string {
			switch {
			case d.NATS == nil:
				return "not configured"
			case d.NATS.IsConnected():
				return "ok"
			default:
				return "disconnected"
			}
		}},
	}
}

// ReadyHandler runs every probe concurrently. The database is the only hard
// dependency; sessions fall back to memory and live updates switch off
// without the others.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	probes := deps.probes()

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string, len(probes))
			ready  = true
		)
		var g errgroup.Group
		for _, p := range probes {
			g.Go(func() error {
				res := p.check(ctx)
				mu.Lock()
				defer mu.Unlock()
				checks[p.name] = res
				if p.required && res != "ok" {
					ready = false
				}
				return nil
			})
		}
		_ = g.Wait()

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
