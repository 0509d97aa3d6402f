// Package config loads utmd settings from defaults, an optional YAML file
// and UTM_ prefixed environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skylane/utm/internal/api/middleware"
	"github.com/skylane/utm/internal/collision"
	"github.com/skylane/utm/internal/database"
	"github.com/skylane/utm/internal/geo"
	"github.com/skylane/utm/internal/logging"
	"github.com/skylane/utm/internal/station"
	"github.com/skylane/utm/internal/worker"
)

// EnvPrefix prefixes every environment override, e.g. UTM_SERVER_PORT.
const EnvPrefix = "UTM"

// Snapshot backends.
const (
	SnapshotNone     = "none"
	SnapshotMemory   = "memory"
	SnapshotBolt     = "bolt"
	SnapshotPostgres = "postgres"
	SnapshotGCS      = "gcs"
	SnapshotS3       = "s3"
)

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Center    CenterConfig    `mapstructure:"center"`
	Collision CollisionConfig `mapstructure:"collision"`
	Airspace  AirspaceConfig  `mapstructure:"airspace"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Database  database.Config `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   logging.Config  `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequireTLS      bool          `mapstructure:"require_tls"`

	// Requests per minute.
	ReadLimit  int `mapstructure:"read_limit"`
	WriteLimit int `mapstructure:"write_limit"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// ReadRateLimit returns the per-IP read budget.
func (s ServerConfig) ReadRateLimit() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{RequestLimit: s.ReadLimit, WindowLength: time.Minute}
}

// WriteRateLimit returns the per-operator write budget.
func (s ServerConfig) WriteRateLimit() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{RequestLimit: s.WriteLimit, WindowLength: time.Minute}
}

type CenterConfig struct {
	ID                    string                `mapstructure:"id"`
	MaxActiveVehicles     int                   `mapstructure:"max_active_vehicles"`
	AuthorizationValidity time.Duration         `mapstructure:"authorization_validity"`
	SegmentThresholdM     float64               `mapstructure:"segment_threshold_m"`
	GroundStations        []GroundStationConfig `mapstructure:"ground_stations"`
}

type GroundStationConfig struct {
	ID             string  `mapstructure:"id"`
	Name           string  `mapstructure:"name"`
	Lat            float64 `mapstructure:"lat"`
	Lon            float64 `mapstructure:"lon"`
	Alt            float64 `mapstructure:"alt"`
	RangeM         float64 `mapstructure:"range_m"`
	MaxConnections int     `mapstructure:"max_connections"`
}

// Stations converts the configured ground stations. All start operational.
func (c CenterConfig) Stations() []station.GroundStation {
	out := make([]station.GroundStation, 0, len(c.GroundStations))
	for _, gs := range c.GroundStations {
		out = append(out, station.GroundStation{
			ID:             gs.ID,
			Name:           gs.Name,
			Position:       geo.Position{Lat: gs.Lat, Lon: gs.Lon, Alt: gs.Alt},
			RangeMeters:    gs.RangeM,
			MaxConnections: gs.MaxConnections,
			Operational:    true,
		})
	}
	return out
}

type CollisionConfig struct {
	MinHorizontalM    float64       `mapstructure:"min_horizontal_m"`
	MinVerticalM      float64       `mapstructure:"min_vertical_m"`
	CheckRadiusM      float64       `mapstructure:"check_radius_m"`
	PredictionHorizon time.Duration `mapstructure:"prediction_horizon"`
	DefaultMaxSpeed   float64       `mapstructure:"default_max_speed"`
}

// Engine returns the risk engine configuration.
func (c CollisionConfig) Engine() collision.Config {
	return collision.Config{
		MinHorizontal:     c.MinHorizontalM,
		MinVertical:       c.MinVerticalM,
		CheckRadius:       c.CheckRadiusM,
		PredictionHorizon: c.PredictionHorizon,
		DefaultMaxSpeed:   c.DefaultMaxSpeed,
	}
}

type AirspaceConfig struct {
	// File is a YAML airspace definition loaded at startup. Empty starts
	// without an airspace; readiness stays failed until one is restored.
	File string `mapstructure:"file"`
}

type SnapshotConfig struct {
	Backend  string `mapstructure:"backend"`
	BoltPath string `mapstructure:"bolt_path"`

	// Object storage, used by the gcs and s3 backends.
	Bucket             string `mapstructure:"bucket"`
	Prefix             string `mapstructure:"prefix"`
	GCSCredentialsFile string `mapstructure:"gcs_credentials_file"`
	S3Region           string `mapstructure:"s3_region"`
	S3Endpoint         string `mapstructure:"s3_endpoint"`
	S3AccessKeyID      string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey  string `mapstructure:"s3_secret_access_key"`

	// Restore loads the newest stored snapshot at startup.
	Restore bool `mapstructure:"restore"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Queue   string `mapstructure:"queue"`
}

type PubSubConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ProjectID    string `mapstructure:"project_id"`
	Subscription string `mapstructure:"subscription"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Environment  string  `mapstructure:"environment"`
}

type AuthConfig struct {
	SigningKey  string        `mapstructure:"signing_key"`
	Issuer      string        `mapstructure:"issuer"`
	Audience    string        `mapstructure:"audience"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	ThrottleRate    float64       `mapstructure:"throttle_rate"`
	ThrottleBurst   int           `mapstructure:"throttle_burst"`
	ArchiveInterval time.Duration `mapstructure:"archive_interval"`
	ArchiveRetain   int           `mapstructure:"archive_retain"`
	ExpiryInterval  time.Duration `mapstructure:"expiry_interval"`
}

// Scheduling returns the worker package configuration.
func (w WorkerConfig) Scheduling() worker.Config {
	return worker.Config{
		Concurrency:     w.Concurrency,
		ThrottleRate:    w.ThrottleRate,
		ThrottleBurst:   w.ThrottleBurst,
		ArchiveInterval: w.ArchiveInterval,
		ArchiveRetain:   w.ArchiveRetain,
		ExpiryInterval:  w.ExpiryInterval,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.require_tls", false)
	v.SetDefault("server.read_limit", middleware.ReadRateLimit.RequestLimit)
	v.SetDefault("server.write_limit", middleware.WriteRateLimit.RequestLimit)

	v.SetDefault("center.id", "utm-center")
	v.SetDefault("center.max_active_vehicles", 100)
	v.SetDefault("center.authorization_validity", time.Hour)
	v.SetDefault("center.segment_threshold_m", 100.0)

	v.SetDefault("collision.min_horizontal_m", collision.MinHorizontalSeparation)
	v.SetDefault("collision.min_vertical_m", collision.MinVerticalSeparation)
	v.SetDefault("collision.check_radius_m", collision.CheckRadius)
	v.SetDefault("collision.prediction_horizon", collision.PredictionHorizon)
	v.SetDefault("collision.default_max_speed", collision.DefaultMaxSpeed)

	v.SetDefault("airspace.file", "")

	v.SetDefault("snapshot.backend", SnapshotMemory)
	v.SetDefault("snapshot.bolt_path", "./data/snapshots.db")
	v.SetDefault("snapshot.bucket", "")
	v.SetDefault("snapshot.prefix", "snapshots")
	v.SetDefault("snapshot.gcs_credentials_file", "")
	v.SetDefault("snapshot.s3_region", "")
	v.SetDefault("snapshot.s3_endpoint", "")
	v.SetDefault("snapshot.s3_access_key_id", "")
	v.SetDefault("snapshot.s3_secret_access_key", "")
	v.SetDefault("snapshot.restore", true)

	db := database.DefaultConfig()
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.name", db.Database)
	v.SetDefault("database.ssl_mode", db.SSLMode)
	v.SetDefault("database.max_open_conns", db.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", db.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connect_timeout", db.ConnectTimeout)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", worker.TelemetrySubjectPrefix+">")
	v.SetDefault("nats.queue", "")

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription", "utm-telemetry")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.environment", "development")

	lg := logging.DefaultConfig()
	v.SetDefault("logging.level", lg.Level)
	v.SetDefault("logging.format", lg.Format)
	v.SetDefault("logging.file", lg.File)
	v.SetDefault("logging.max_size_mb", lg.MaxSizeMB)
	v.SetDefault("logging.max_backups", lg.MaxBackups)
	v.SetDefault("logging.max_age_days", lg.MaxAgeDays)
	v.SetDefault("logging.compress", lg.Compress)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.issuer", "utm-center")
	v.SetDefault("auth.audience", "utm-api")
	v.SetDefault("auth.token_expiry", time.Hour)

	wk := worker.DefaultConfig()
	v.SetDefault("worker.concurrency", wk.Concurrency)
	v.SetDefault("worker.throttle_rate", wk.ThrottleRate)
	v.SetDefault("worker.throttle_burst", wk.ThrottleBurst)
	v.SetDefault("worker.archive_interval", wk.ArchiveInterval)
	v.SetDefault("worker.archive_retain", wk.ArchiveRetain)
	v.SetDefault("worker.expiry_interval", wk.ExpiryInterval)
}

// Load reads configuration. An empty path searches ./utmd.yaml,
// ./config/utmd.yaml and /etc/utmd/utmd.yaml; a missing file is not an
// error unless path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("utmd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/utmd")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port >= 1 && c.Server.Port <= 65535, "server.port must be between 1 and 65535, got %d", c.Server.Port)
	check(c.Server.ReadLimit > 0, "server.read_limit must be positive, got %d", c.Server.ReadLimit)
	check(c.Server.WriteLimit > 0, "server.write_limit must be positive, got %d", c.Server.WriteLimit)

	check(c.Center.ID != "", "center.id cannot be empty")
	check(c.Center.MaxActiveVehicles > 0, "center.max_active_vehicles must be positive, got %d", c.Center.MaxActiveVehicles)
	check(c.Center.SegmentThresholdM > 0, "center.segment_threshold_m must be positive, got %g", c.Center.SegmentThresholdM)
	seen := make(map[string]bool, len(c.Center.GroundStations))
	for i, gs := range c.Center.GroundStations {
		check(gs.ID != "", "center.ground_stations[%d].id cannot be empty", i)
		check(!seen[gs.ID], "center.ground_stations[%d].id %q is duplicated", i, gs.ID)
		check(gs.RangeM > 0, "center.ground_stations[%d].range_m must be positive", i)
		check(gs.Lat >= -90 && gs.Lat <= 90 && gs.Lon >= -180 && gs.Lon <= 180,
			"center.ground_stations[%d] has an invalid position", i)
		seen[gs.ID] = true
	}

	check(c.Collision.MinHorizontalM > 0, "collision.min_horizontal_m must be positive")
	check(c.Collision.MinVerticalM > 0, "collision.min_vertical_m must be positive")
	check(c.Collision.CheckRadiusM >= c.Collision.MinHorizontalM,
		"collision.check_radius_m (%g) must be at least collision.min_horizontal_m (%g)",
		c.Collision.CheckRadiusM, c.Collision.MinHorizontalM)

	switch c.Snapshot.Backend {
	case SnapshotNone, SnapshotMemory:
	case SnapshotBolt:
		check(c.Snapshot.BoltPath != "", "snapshot.bolt_path cannot be empty for the bolt backend")
	case SnapshotPostgres:
		if err := c.Database.Validate(); err != nil {
			errs = append(errs, err)
		}
	case SnapshotGCS, SnapshotS3:
		check(c.Snapshot.Bucket != "", "snapshot.bucket cannot be empty for the %s backend", c.Snapshot.Backend)
		check((c.Snapshot.S3AccessKeyID == "") == (c.Snapshot.S3SecretAccessKey == ""),
			"snapshot.s3_access_key_id and snapshot.s3_secret_access_key must be set together")
	default:
		check(false, "snapshot.backend must be one of none, memory, bolt, postgres, gcs, s3, got %q", c.Snapshot.Backend)
	}

	if c.NATS.Enabled {
		check(c.NATS.URL != "", "nats.url cannot be empty when nats is enabled")
		check(c.NATS.Subject != "", "nats.subject cannot be empty when nats is enabled")
	}
	if c.PubSub.Enabled {
		check(c.PubSub.ProjectID != "", "pubsub.project_id cannot be empty when pubsub is enabled")
		check(c.PubSub.Subscription != "", "pubsub.subscription cannot be empty when pubsub is enabled")
	}
	if c.Telemetry.Enabled {
		check(c.Telemetry.OTLPEndpoint != "", "telemetry.otlp_endpoint cannot be empty when telemetry is enabled")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	check(c.Logging.Format == "json" || c.Logging.Format == "console",
		"logging.format must be json or console, got %q", c.Logging.Format)

	check(c.Auth.SigningKey == "" || len(c.Auth.SigningKey) >= 32,
		"auth.signing_key must be at least 32 bytes")

	check(c.Worker.Concurrency >= 1 && c.Worker.Concurrency <= 256,
		"worker.concurrency must be between 1 and 256, got %d", c.Worker.Concurrency)
	check(c.Worker.ArchiveRetain >= 0, "worker.archive_retain cannot be negative")

	return errors.Join(errs...)
}
