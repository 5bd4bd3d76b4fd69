package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/repository"
	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env      string
	LogLevel string

	HTTPPort string
	GRPCPort string

	StoreDriver    string
	MongoURI       string
	MongoDBName    string
	Postgres       repository.Credentials
	SQLitePath     string
	MigrationsPath string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string

	FunctionsBaseURL string
	PaymentKeyID     string
	PaymentKeySecret string

	InvoiceBucket   string
	InvoiceEndpoint string
	AWSRegion       string

	AdminUserIDs []string

	RateLimitRPS   float64
	RateLimitBurst int

	CheckoutAttemptTTL time.Duration
	SessionIdleTTL     time.Duration
}

// Load reads the environment, after merging an optional .env file from the
// working directory, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50060"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "storefront"),
		Postgres: repository.Credentials{
			Host:     getEnv("DB_HOST", "localhost"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "storefront"),
		},
		SQLitePath: getEnv("SQLITE_PATH", "storefront.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),

		FunctionsBaseURL: getEnv("FUNCTIONS_BASE_URL", ""),
		PaymentKeyID:     getEnv("PAYMENT_KEY_ID", ""),
		PaymentKeySecret: getEnv("PAYMENT_KEY_SECRET", ""),

		InvoiceBucket:   getEnv("INVOICE_BUCKET", "invoices"),
		InvoiceEndpoint: getEnv("INVOICE_ENDPOINT", ""),
		AWSRegion:       getEnv("AWS_REGION", "ap-south-1"),

		AdminUserIDs: splitList(getEnv("ADMIN_USER_IDS", "")),
	}
	if cfg.StoreDriver != DriverMongo {
		cfg.MigrationsPath = getEnv("MIGRATIONS_PATH", "internal/repository/sqlstore/migrations/"+cfg.StoreDriver)
	}

	var err error
	if cfg.Postgres.Port, err = strconv.Atoi(getEnv("DB_PORT", "5432")); err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	if cfg.RateLimitRPS, err = strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "20"), 64); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(getEnv("RATE_LIMIT_BURST", "40")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}
	if cfg.CheckoutAttemptTTL, err = time.ParseDuration(getEnv("CHECKOUT_ATTEMPT_TTL", "15m")); err != nil {
		return nil, fmt.Errorf("invalid CHECKOUT_ATTEMPT_TTL: %w", err)
	}
	if cfg.SessionIdleTTL, err = time.ParseDuration(getEnv("SESSION_IDLE_TTL", "30m")); err != nil {
		return nil, fmt.Errorf("invalid SESSION_IDLE_TTL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMongo, DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of mongo, postgres, sqlite, got %q", c.StoreDriver))
	}
	if _, err := strconv.Atoi(c.HTTPPort); err != nil {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %q", c.HTTPPort))
	}
	if _, err := strconv.Atoi(c.GRPCPort); err != nil {
		errs = append(errs, fmt.Errorf("invalid GRPC_PORT %q", c.GRPCPort))
	}
	if c.FunctionsBaseURL == "" {
		errs = append(errs, errors.New("FUNCTIONS_BASE_URL is required"))
	}
	if c.PaymentKeySecret == "" {
		errs = append(errs, errors.New("PAYMENT_KEY_SECRET is required"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.CheckoutAttemptTTL <= 0 {
		errs = append(errs, errors.New("CHECKOUT_ATTEMPT_TTL must be positive"))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
