package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("geodash-test")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Telemetry.ServiceName != "geodash-test" {
		t.Errorf("telemetry.service_name = %q, want geodash-test", cfg.Telemetry.ServiceName)
	}
	if cfg.Auth.SessionTTL != 12*time.Hour {
		t.Errorf("auth.session_ttl = %v, want 12h", cfg.Auth.SessionTTL)
	}
	if cfg.Media.MaxUploadBytes != 10<<20 {
		t.Errorf("media.max_upload_bytes = %d", cfg.Media.MaxUploadBytes)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GEODASH_SERVER_PORT", "9090")
	t.Setenv("GEODASH_AUTH_SESSION_STORE", "memory")
	t.Setenv("GEODASH_MAP_DEFAULT_ZOOM", "7")

	cfg, err := Load("geodash-test")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Auth.SessionStore != "memory" {
		t.Errorf("auth.session_store = %q, want memory", cfg.Auth.SessionStore)
	}
	if cfg.Map.DefaultZoom != 7 {
		t.Errorf("map.default_zoom = %d, want 7", cfg.Map.DefaultZoom)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg, err := Load("geodash-test")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg.Server.Port = 0
	cfg.Auth.SessionStore = "disk"
	cfg.Auth.BootstrapEmail = "admin@example.com"
	cfg.Map.DefaultLat = 120

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "auth.session_store", "auth.bootstrap_email", "map.default_lat"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "geo", SSLMode: "disable"}
	want := "postgres://u:p@db:5432/geo?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
