package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config holds process settings. Values come from the environment (optionally
// seeded from a .env file) and can be overridden on the command line.
type Config struct {
	Port             string
	RunLocal         bool
	TableName        string
	StatusIndex      string
	QueueURL         string
	MetricsNamespace string
	JWTSecret        string
	TokenTTL         time.Duration
	IdempotencyTTL   time.Duration
	BcryptCost       int
	LogLevel         string

	// ProvisionManager is "username:password"; when set the api binary creates
	// that manager account and exits.
	ProvisionManager string
}

// Load reads .env, the environment, then args. A missing .env file is not an error.
func Load(args []string) (*Config, error) {
	// .env is optional in deployed environments
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		RunLocal:         getEnv("RUN_LOCAL", "") == "true",
		TableName:        getEnv("TABLE_NAME", "ReimbursementTable"),
		StatusIndex:      getEnv("STATUS_INDEX", "status-index"),
		QueueURL:         getEnv("TICKET_EVENTS_QUEUE_URL", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "Reimbursement"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = getInt("BCRYPT_COST", 10); err != nil {
		return nil, err
	}

	flagSet := pflag.NewFlagSet("ticket-api", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Port, "port", cfg.Port, "port for the local HTTP server")
	flagSet.BoolVar(&cfg.RunLocal, "local", cfg.RunLocal, "serve HTTP directly instead of running under Lambda")
	flagSet.StringVar(&cfg.TableName, "table", cfg.TableName, "DynamoDB table name")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flagSet.StringVar(&cfg.ProvisionManager, "provision-manager", "", "create a manager account (username:password) and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports settings that would leave the service unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.TableName == "" {
		errs = append(errs, errors.New("table name is required"))
	}
	if c.JWTSecret == "" && !c.RunLocal {
		errs = append(errs, errors.New("JWT_SECRET is required outside local mode"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// Helper to get env with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
