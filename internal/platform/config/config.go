package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures process level configuration.
type Server struct {
	AdminAddress  string `env:"TRACECHAIN_ADMIN_ADDRESS,required"`
	JWTSigningKey string `env:"TRACECHAIN_JWT_SIGNING_KEY"`
	JWTIssuer     string `env:"TRACECHAIN_JWT_ISSUER"  envDefault:"tracechain"`
	LogLevel      string `env:"TRACECHAIN_LOG_LEVEL"   envDefault:"info"`
	LogFormat     string `env:"TRACECHAIN_LOG_FORMAT"  envDefault:"text"`

	ShutdownTimeout time.Duration `env:"TRACECHAIN_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AuditBuffer     int           `env:"TRACECHAIN_AUDIT_BUFFER"     envDefault:"1024"`

	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

// HTTPConfig tunes the listener. Zero durations use the server defaults.
type HTTPConfig struct {
	Addr              string        `env:"TRACECHAIN_ADDR"                     envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"TRACECHAIN_HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `env:"TRACECHAIN_HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `env:"TRACECHAIN_HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `env:"TRACECHAIN_HTTP_IDLE_TIMEOUT"`
}

// DatabaseConfig selects the PostgreSQL backend. An empty URL keeps every
// store in memory.
type DatabaseConfig struct {
	URL             string        `env:"TRACECHAIN_DATABASE_URL"`
	MaxOpenConns    int           `env:"TRACECHAIN_DATABASE_MAX_OPEN_CONNS"    envDefault:"20"`
	MaxIdleConns    int           `env:"TRACECHAIN_DATABASE_MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"TRACECHAIN_DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig enables the read-through token cache.
type RedisConfig struct {
	URL          string        `env:"TRACECHAIN_REDIS_URL"`
	PoolSize     int           `env:"TRACECHAIN_REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"TRACECHAIN_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"TRACECHAIN_REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"TRACECHAIN_REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"TRACECHAIN_REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
	TokenTTL     time.Duration `env:"TRACECHAIN_TOKEN_CACHE_TTL"      envDefault:"10m"`
}

// KafkaConfig enables streaming audit events.
type KafkaConfig struct {
	Brokers    []string `env:"TRACECHAIN_KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"TRACECHAIN_KAFKA_AUDIT_TOPIC" envDefault:"tracechain.audit"`
	Partitions int32    `env:"TRACECHAIN_KAFKA_PARTITIONS"  envDefault:"3"`
}

// RateLimitConfig caps requests per caller. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `env:"TRACECHAIN_RATE_LIMIT"  envDefault:"0"`
	Window   time.Duration `env:"TRACECHAIN_RATE_WINDOW" envDefault:"1m"`
}

func (c DatabaseConfig) Enabled() bool  { return c.URL != "" }
func (c RedisConfig) Enabled() bool     { return c.URL != "" }
func (c KafkaConfig) Enabled() bool     { return len(c.Brokers) > 0 }
func (c RateLimitConfig) Enabled() bool { return c.Requests > 0 }

// FromEnv parses the environment into a Server config.
func FromEnv() (Server, error) {
	return Parse(env.Options{})
}

// Parse is FromEnv with explicit options; tests pass Environment to avoid
// touching the process environment.
func Parse(opts env.Options) (Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if strings.TrimSpace(cfg.AdminAddress) == "" {
		return Server{}, fmt.Errorf("parse env: TRACECHAIN_ADMIN_ADDRESS is blank")
	}
	if cfg.AuditBuffer < 0 {
		return Server{}, fmt.Errorf("parse env: TRACECHAIN_AUDIT_BUFFER must not be negative")
	}
	if cfg.RateLimit.Requests < 0 {
		return Server{}, fmt.Errorf("parse env: TRACECHAIN_RATE_LIMIT must not be negative")
	}
	if cfg.RateLimit.Enabled() && cfg.RateLimit.Window <= 0 {
		return Server{}, fmt.Errorf("parse env: TRACECHAIN_RATE_WINDOW must be positive")
	}
	return cfg, nil
}
