package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8030"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":8031"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DB          DBConfig

	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"3s"`

	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"redis:6379"`
	RedisPass       string        `env:"REDIS_PASS"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	BalanceCacheTTL time.Duration `env:"BALANCE_CACHE_TTL" envDefault:"30s"`

	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"escrow-events"`
	EventQueueSize int      `env:"EVENT_QUEUE_SIZE" envDefault:"1024"`

	PlatformCurrency string `env:"PLATFORM_CURRENCY" envDefault:"GHS"`
	FeeBasisPoints   int64  `env:"FEE_BASIS_POINTS" envDefault:"500"`
	PlatformOwnerID  string `env:"PLATFORM_OWNER_ID" envDefault:"platform"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTPublicKey  string        `env:"JWT_PUBLIC_KEY_PATH"`
	JWTIssuer     string        `env:"JWT_ISSUER"`
	JWTAudience   string        `env:"JWT_AUDIENCE"`
	RateLimit     int           `env:"RATE_LIMIT" envDefault:"120"`
	RateWindow    time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
	RateBlock     time.Duration `env:"RATE_BLOCK" envDefault:"5m"`
	CORSOrigins   []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	ReconcileCron string        `env:"RECONCILE_CRON" envDefault:"*/15 * * * *"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"escrow"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"50"`
	MinConns int32  `env:"DB_MIN_CONNS" envDefault:"5"`
}

func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Name)
}

func (c AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// Load parses the environment. Call godotenv first to pick up a .env file.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	if c.FeeBasisPoints < 0 || c.FeeBasisPoints > 10000 {
		return fmt.Errorf("FEE_BASIS_POINTS must be within 0..10000, got %d", c.FeeBasisPoints)
	}
	if len(c.PlatformCurrency) != 3 {
		return fmt.Errorf("PLATFORM_CURRENCY must be an ISO code, got %q", c.PlatformCurrency)
	}
	if c.JWTSecret == "" && c.JWTPublicKey == "" {
		return fmt.Errorf("one of JWT_SECRET or JWT_PUBLIC_KEY_PATH is required")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive")
	}
	return nil
}
