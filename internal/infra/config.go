package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Storage
	StoreBackend  string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	PGHost        string `env:"PGHOST" envDefault:"localhost"`
	PGPort        int    `env:"PGPORT" envDefault:"5435"`
	PGUser        string `env:"PGUSER" envDefault:"stakehouse"`
	PGPassword    string `env:"PGPASSWORD" envDefault:"stakehouse"`
	PGDatabase    string `env:"PGDATABASE" envDefault:"stakehouse"`
	PGMaxConns    int32  `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns    int32  `env:"PG_MIN_CONNS" envDefault:"2"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/stakehouse.db"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Optimistic retry
	TxMaxAttempts int           `env:"TX_MAX_ATTEMPTS" envDefault:"8"`
	TxBackoffBase time.Duration `env:"TX_BACKOFF_BASE" envDefault:"2ms"`
	TxBackoffMax  time.Duration `env:"TX_BACKOFF_MAX" envDefault:"100ms"`

	// Redis
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6380"`
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Elasticsearch
	ElasticsearchURL     string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchEnabled bool   `env:"ELASTICSEARCH_ENABLED" envDefault:"false"`
	ElasticsearchIndex   string `env:"ELASTICSEARCH_INDEX" envDefault:"stakehouse-events"`

	// JWT
	JWTSecret         string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry   time.Duration `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTOperatorExpiry time.Duration `env:"JWT_OPERATOR_EXPIRY" envDefault:"8h"`

	// Server
	APIPort            int    `env:"API_PORT" envDefault:"3100"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`

	// Rules
	ReferralEnabled    bool  `env:"REFERRAL_ENABLED" envDefault:"true"`
	ReferralBonus      int64 `env:"REFERRAL_BONUS" envDefault:"100"`
	ReferralMaxPerUser int   `env:"REFERRAL_MAX_PER_USER" envDefault:"10"`
	MinStake           int64 `env:"MIN_STAKE" envDefault:"1"`
	MaxStake           int64 `env:"MAX_STAKE" envDefault:"1000000"`
	MaxRequestAmount   int64 `env:"MAX_REQUEST_AMOUNT" envDefault:"10000000"`

	// Background workers
	EventSweepInterval time.Duration `env:"EVENT_SWEEP_INTERVAL" envDefault:"5s"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig reads an optional .env file, then parses environment variables
// into a Config. Variables already set in the environment win over the file.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, nil
}

// Validate checks for insecure or inconsistent configuration.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret checks (local dev only).
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND %q is not one of postgres, sqlite, memory", c.StoreBackend)
	}
	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1, got %d", c.TxMaxAttempts)
	}
	if c.StoreBackend == BackendPostgres && c.PGMaxConns < 1 {
		return fmt.Errorf("PG_MAX_CONNS must be at least 1, got %d", c.PGMaxConns)
	}
	if c.MinStake < 1 || (c.MaxStake > 0 && c.MaxStake < c.MinStake) {
		return fmt.Errorf("stake bounds are inconsistent: min %d, max %d", c.MinStake, c.MaxStake)
	}

	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureJWTSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// Brokers splits KAFKA_BROKERS into addresses.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
