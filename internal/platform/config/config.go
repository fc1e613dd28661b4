package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	strs "cardgate/pkg/platform/strings"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Server       Server
	Database     Database
	Redis        RedisConfig
	Kafka        Kafka
	Auth         Auth
	Distribution Distribution
	Delivery     Delivery
	RateLimit    RateLimit
	Card         Card
	Tracing      Tracing
	Environment  string `env:"CARDGATE_ENV" envDefault:"development"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"CARDGATE_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"CARDGATE_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Database selects the Postgres stores when URL is set; in-memory otherwise.
type Database struct {
	URL          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
}

type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka enables the audit sink when Brokers is non-empty.
type Kafka struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"cardgate.audit"`
}

type Auth struct {
	JWTSigningKey  string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer      string        `env:"JWT_ISSUER" envDefault:"cardgate"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	// Seed issuer created at startup when both are set.
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

type Distribution struct {
	TTL time.Duration `env:"DISTRIBUTION_TTL" envDefault:"24h"`
}

type Delivery struct {
	DeepLinkScheme string `env:"DEEP_LINK_SCHEME" envDefault:"cardgate"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
}

// RateLimit bounds requests per client IP on the unauthenticated token endpoints.
type RateLimit struct {
	Enabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

type Card struct {
	// SimulatedReaders lists "reader=ATR-hex" pairs; an empty ATR means no card.
	SimulatedReaders []string      `env:"CARD_SIMULATED_READERS" envSeparator:";" envDefault:"ACS ACR122U 00=3B8F8001804F0CA000000306030001000000006A"`
	ScanTimeout      time.Duration `env:"CARD_SCAN_TIMEOUT" envDefault:"5s"`
}

// Tracing exports spans over OTLP/HTTP when Endpoint is set.
type Tracing struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"cardgate"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLE_RATIO" envDefault:"1"`
}

// IsProduction reports whether structured JSON logging and strict defaults apply.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = strs.DedupeFold(cfg.Kafka.Brokers)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Distribution.TTL <= 0 {
		return fmt.Errorf("DISTRIBUTION_TTL must be positive, got %s", c.Distribution.TTL)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requires positive RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be within [0,1], got %g", c.Tracing.SampleRatio)
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}
