package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"medcourier/internal/compliance"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Environment string
	Server      Server
	Auth        Auth
	Log         Log
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Compliance  compliance.Thresholds
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

type Log struct {
	Level  string
	Format string
}

// DatabaseConfig selects PostgreSQL. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL             string
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// RedisConfig enables the distributed clock-in lock. Empty URL disables it.
type RedisConfig struct {
	URL            string
	PoolSize       int
	MinIdleConns   int
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ClockInLockTTL time.Duration
}

// KafkaConfig enables the outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers      []string
	PollInterval time.Duration
	BatchSize    int
	EnsureTopics bool
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing file is fine; real deployments use the environment.
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var p parser
	cfg := Config{
		Environment: p.str("MEDCOURIER_ENV", "development"),
		Server: Server{
			Addr:              p.str("MEDCOURIER_ADDR", ":8080"),
			ReadHeaderTimeout: p.duration("MEDCOURIER_READ_HEADER_TIMEOUT", 5*time.Second),
			RequestTimeout:    p.duration("MEDCOURIER_REQUEST_TIMEOUT", 15*time.Second),
			ShutdownTimeout:   p.duration("MEDCOURIER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: Auth{
			JWTSigningKey: p.str("JWT_SIGNING_KEY", ""),
			Issuer:        p.str("JWT_ISSUER", "medcourier"),
			Audience:      p.str("JWT_AUDIENCE", "medcourier-api"),
		},
		Log: Log{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:             p.str("DATABASE_URL", ""),
			Driver:          p.str("DATABASE_DRIVER", "pgx"),
			MaxOpenConns:    p.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    p.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			Migrate:         p.boolean("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:            p.str("REDIS_URL", ""),
			PoolSize:       p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns:   p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:    p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:    p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:   p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ClockInLockTTL: p.duration("CLOCK_IN_LOCK_TTL", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      p.list("KAFKA_BROKERS"),
			PollInterval: p.duration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    p.integer("OUTBOX_BATCH_SIZE", 100),
			EnsureTopics: p.boolean("KAFKA_ENSURE_TOPICS", true),
		},
		Compliance: compliance.Thresholds{
			RegistrationExpiringDays: p.integer("COMPLIANCE_REGISTRATION_EXPIRING_DAYS", compliance.DefaultRegistrationExpiringDays),
			MaintenanceWarningMiles:  p.integer("COMPLIANCE_MAINTENANCE_WARNING_MILES", compliance.DefaultMaintenanceWarningMiles),
			MaintenanceDueMiles:      p.integer("COMPLIANCE_MAINTENANCE_DUE_MILES", compliance.DefaultMaintenanceDueMiles),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) validate() error {
	if c.Auth.JWTSigningKey == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SIGNING_KEY is required in production")
		}
	}
	if c.Compliance.MaintenanceWarningMiles >= c.Compliance.MaintenanceDueMiles {
		return fmt.Errorf("maintenance warning threshold (%d) must be below due threshold (%d)",
			c.Compliance.MaintenanceWarningMiles, c.Compliance.MaintenanceDueMiles)
	}
	return nil
}

// parser records the first malformed variable and keeps defaults otherwise.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
