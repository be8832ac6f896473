package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env      string `validate:"oneof=development production test"`
	Port     string `validate:"required,numeric"`
	RunLocal bool
	Region   string `validate:"required"`
	Endpoint string

	TransactionsTable string `validate:"required"`
	IdempotencyTable  string `validate:"required"`
	QueueURL          string
	RedisURL          string `validate:"required"`

	HeldSaleTTL    time.Duration `validate:"gt=0"`
	IdempotencyTTL time.Duration `validate:"gt=0"`
	SaveTimeout    time.Duration `validate:"gt=0"`

	MetricsEnabled   bool
	MetricsNamespace string

	DefaultTaxRate decimal.Decimal
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		RunLocal:          getBool("RUN_LOCAL", false, &errs),
		Region:            getEnv("AWS_REGION", "us-east-1"),
		Endpoint:          getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		TransactionsTable: getEnv("TRANSACTIONS_TABLE", "pos-transactions"),
		IdempotencyTable:  getEnv("IDEMPOTENCY_TABLE", "pos-idempotency"),
		QueueURL:          getEnv("TRANSACTIONS_QUEUE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		HeldSaleTTL:       getDuration("HELD_SALE_TTL", 24*time.Hour, &errs),
		IdempotencyTTL:    getDuration("IDEMPOTENCY_TTL", 48*time.Hour, &errs),
		SaveTimeout:       getDuration("SAVE_TIMEOUT", 5*time.Second, &errs),
		MetricsEnabled:    getBool("METRICS_ENABLED", true, &errs),
		MetricsNamespace:  getEnv("METRICS_NAMESPACE", "POS"),
	}

	rate, err := decimal.NewFromString(getEnv("DEFAULT_TAX_RATE", "0"))
	if err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TAX_RATE: %w", err))
	} else if rate.IsNegative() {
		errs = append(errs, fmt.Errorf("DEFAULT_TAX_RATE: must not be negative"))
	}
	cfg.DefaultTaxRate = rate

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs)
	}
	if err := validatorv10.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool, errs *[]error) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return b
}

func getDuration(key string, defaultVal time.Duration, errs *[]error) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return d
}
