package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Map       MapConfig       `mapstructure:"map"`
	Media     MediaConfig     `mapstructure:"media"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"read_timeout"`
	WriteTimeout   int    `mapstructure:"write_timeout"`
	RequestTimeout int    `mapstructure:"request_timeout"`
	AllowOrigins   string `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Enabled      bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type AuthConfig struct {
	SessionStore      string        `mapstructure:"session_store"` // valkey | memory
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	CookieName        string        `mapstructure:"cookie_name"`
	SecureCookies     bool          `mapstructure:"secure_cookies"`
	AllowRegistration bool          `mapstructure:"allow_registration"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
	BootstrapEmail    string        `mapstructure:"bootstrap_email"`
	BootstrapPassword string        `mapstructure:"bootstrap_password"`
	LoginRateLimit    int           `mapstructure:"login_rate_limit"`
}

type MapConfig struct {
	DefaultLat   float64 `mapstructure:"default_lat"`
	DefaultLon   float64 `mapstructure:"default_lon"`
	DefaultZoom  int     `mapstructure:"default_zoom"`
	TileURL      string  `mapstructure:"tile_url"`
	Attribution  string  `mapstructure:"attribution"`
	DensityZoom  int     `mapstructure:"density_zoom"`
	ChartDays    int     `mapstructure:"chart_days"`
	ChartTTLSecs int     `mapstructure:"chart_ttl_seconds"`
}

type MediaConfig struct {
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	MaxWidth       int    `mapstructure:"max_width"`
	MaxHeight      int    `mapstructure:"max_height"`
	MaxPixels      int    `mapstructure:"max_pixels"`
	StagingDir     string `mapstructure:"staging_dir"`
	Bucket         string `mapstructure:"bucket"`
	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UsePathStyle   bool   `mapstructure:"use_path_style"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: GEODASH_DATABASE_HOST → database.host
	v.SetEnvPrefix("GEODASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.request_timeout", 15)
	v.SetDefault("server.allow_origins", "http://localhost:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "geodash")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "geodash")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "geodash-media")
	v.SetDefault("auth.session_store", "valkey")
	v.SetDefault("auth.session_ttl", 12*time.Hour)
	v.SetDefault("auth.cookie_name", "geodash_session")
	v.SetDefault("auth.secure_cookies", false)
	v.SetDefault("auth.allow_registration", false)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.bootstrap_email", "")
	v.SetDefault("auth.bootstrap_password", "")
	v.SetDefault("auth.login_rate_limit", 10)
	v.SetDefault("map.default_lat", 43.263)
	v.SetDefault("map.default_lon", -2.935)
	v.SetDefault("map.default_zoom", 5)
	v.SetDefault("map.tile_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map.attribution", "&copy; OpenStreetMap contributors")
	v.SetDefault("map.density_zoom", 8)
	v.SetDefault("map.chart_days", 30)
	v.SetDefault("map.chart_ttl_seconds", 60)
	v.SetDefault("media.max_upload_bytes", 10<<20)
	v.SetDefault("media.max_width", 8000)
	v.SetDefault("media.max_height", 8000)
	v.SetDefault("media.max_pixels", 40_000_000)
	v.SetDefault("media.staging_dir", "/tmp/geodash-staging")
	v.SetDefault("media.bucket", "geodash-media")
	v.SetDefault("media.endpoint", "http://localhost:9000")
	v.SetDefault("media.region", "us-east-1")
	v.SetDefault("media.access_key", "")
	v.SetDefault("media.secret_key", "")
	v.SetDefault("media.use_path_style", true)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "server.request_timeout must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required when temporal is enabled")
	}
	switch c.Auth.SessionStore {
	case "valkey", "memory":
	default:
		errs = append(errs, fmt.Sprintf("auth.session_store must be valkey or memory, got %q", c.Auth.SessionStore))
	}
	if c.Auth.SessionTTL < time.Minute {
		errs = append(errs, "auth.session_ttl must be at least 1m")
	}
	if c.Auth.CookieName == "" {
		errs = append(errs, "auth.cookie_name is required")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Sprintf("auth.bcrypt_cost must be 4-31, got %d", c.Auth.BcryptCost))
	}
	if (c.Auth.BootstrapEmail == "") != (c.Auth.BootstrapPassword == "") {
		errs = append(errs, "auth.bootstrap_email and auth.bootstrap_password must be set together")
	}
	if c.Map.DefaultLat < -90 || c.Map.DefaultLat > 90 {
		errs = append(errs, "map.default_lat must be within [-90, 90]")
	}
	if c.Map.DefaultLon < -180 || c.Map.DefaultLon > 180 {
		errs = append(errs, "map.default_lon must be within [-180, 180]")
	}
	if c.Map.DefaultZoom < 0 || c.Map.DefaultZoom > 19 {
		errs = append(errs, "map.default_zoom must be 0-19")
	}
	if c.Map.DensityZoom < 0 || c.Map.DensityZoom > 19 {
		errs = append(errs, "map.density_zoom must be 0-19")
	}
	if c.Map.ChartDays <= 0 || c.Map.ChartDays > 366 {
		errs = append(errs, "map.chart_days must be 1-366")
	}
	if c.Media.MaxUploadBytes <= 0 {
		errs = append(errs, "media.max_upload_bytes must be positive")
	}
	if c.Media.MaxWidth <= 0 || c.Media.MaxHeight <= 0 {
		errs = append(errs, "media.max_width and media.max_height must be positive")
	}
	if c.Media.MaxPixels < 0 {
		errs = append(errs, "media.max_pixels must not be negative")
	}
	if c.Media.StagingDir == "" {
		errs = append(errs, "media.staging_dir is required")
	}
	if c.Media.Bucket == "" {
		errs = append(errs, "media.bucket is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
