package http

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geodash/internal/core/usecases"
)

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries presentation settings that are not owned by a service.
type Options struct {
	CookieName     string
	SecureCookies  bool
	SessionTTL     time.Duration
	LoginRateLimit int
	RequestTimeout time.Duration
	AllowOrigins   string
	TileURL        string
	Attribution    string
	Version        string
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Auth        *usecases.AuthService
	Records     *usecases.RecordService
	Charts      *usecases.ChartService
	Maps        *usecases.MapService
	Geolocation *usecases.GeolocationService
	Media       *usecases.MediaService
	NATS        *nats.Conn
	DB          Pinger
	Cache       Pinger
	Options     Options
}

func (d *Dependencies) cookieName() string {
	if d.Options.CookieName == "" {
		return "geodash_session"
	}
	return d.Options.CookieName
}

func (d *Dependencies) requestTimeout() time.Duration {
	if d.Options.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return d.Options.RequestTimeout
}
