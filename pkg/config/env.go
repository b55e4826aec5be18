package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingEnv is returned when a required environment variable is unset.
var ErrMissingEnv = errors.New("missing required environment variable")

// DatabaseConfig holds the postgres connection settings.
type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
}

// Enabled reports whether a database host was configured.
func (c DatabaseConfig) Enabled() bool { return c.Host != "" }

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// RabbitMQConfig holds the broker connection settings.
type RabbitMQConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

func (c RabbitMQConfig) Enabled() bool { return c.Host != "" }

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

// LogConfig selects the logger level, format and optional file.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// AppConfig is the process configuration shared by all binaries.
type AppConfig struct {
	WSSURL string
	RPCURL string

	RulesFile       string
	RulesReloadSpec string
	PriceSource     string
	JupiterURL      string

	Database      DatabaseConfig
	MigrationsDir string

	RabbitMQ   RabbitMQConfig
	AlertQueue string

	HTTPAddr         string
	AllowedOrigins   []string
	HTTPRateLimit    float64
	HTTPRateBurst    int
	ShutdownGrace    time.Duration
	Log              LogConfig
	AccountProfitPct float64

	AlertWebhookURL string
	TelegramToken   string
	TelegramChatID  int64
}

// Load reads .env when present and then the process environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		WSSURL:          os.Getenv("SOLANA_WSS_URL"),
		RPCURL:          os.Getenv("SOLANA_RPC_URL"),
		RulesFile:       getEnv("RULES_FILE", "strategies.json"),
		RulesReloadSpec: getEnv("RULES_RELOAD_SPEC", "@every 60s"),
		PriceSource:     getEnv("PRICE_SOURCE", "trade"),
		JupiterURL:      os.Getenv("JUPITER_URL"),
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			Port:     getEnv("DB_PORT", "5432"),
		},
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		RabbitMQ: RabbitMQConfig{
			Host:     os.Getenv("RABBITMQ_HOST"),
			Port:     getEnv("RABBITMQ_PORT", "5672"),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
		},
		AlertQueue: getEnv("ALERT_QUEUE", "smart_monitor_alerts"),
		HTTPAddr:   os.Getenv("HTTP_ADDR"),
		// comma separated, e.g. "http://localhost:3000,http://localhost:3001"
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   os.Getenv("LOG_FILE"),
		},
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		TelegramToken:   os.Getenv("TELEGRAM_TOKEN"),
	}

	var err error
	if cfg.ShutdownGrace, err = getDuration("SHUTDOWN_GRACE", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.AccountProfitPct, err = getFloat("ACCOUNT_PROFIT_PERCENTAGE", 50); err != nil {
		return nil, err
	}
	if cfg.HTTPRateLimit, err = getFloat("HTTP_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	burst, err := getInt("HTTP_RATE_BURST", 20)
	if err != nil {
		return nil, err
	}
	cfg.HTTPRateBurst = int(burst)
	if cfg.TelegramChatID, err = getInt("TELEGRAM_CHAT_ID", 0); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireStream checks the endpoints needed by the monitor worker.
func (c *AppConfig) RequireStream() error {
	if c.WSSURL == "" {
		return fmt.Errorf("%w: SOLANA_WSS_URL", ErrMissingEnv)
	}
	if c.RPCURL == "" {
		return fmt.Errorf("%w: SOLANA_RPC_URL", ErrMissingEnv)
	}
	return nil
}

// RequireDatabase checks a database was configured.
func (c *AppConfig) RequireDatabase() error {
	if !c.Database.Enabled() {
		return fmt.Errorf("%w: DB_HOST", ErrMissingEnv)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func getInt(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
