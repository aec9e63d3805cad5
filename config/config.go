// Package config loads server configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Log     LogConfig
	Billing BillingConfig
	Sweep   SweepConfig
	Mail    MailConfig
	Metrics MetricsConfig
}

type ServerConfig struct {
	Port        int      `validate:"min=1,max=65535"`
	CORSOrigins []string `validate:"min=1"`
}

// StoreConfig picks the persistence backend. The memory driver loses
// everything on restart.
type StoreConfig struct {
	Driver string `validate:"oneof=sqlite memory"`
	Path   string `validate:"required_if=Driver sqlite"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

type BillingConfig struct {
	InvoiceDueDays int `validate:"min=0,max=90"`
}

// SweepConfig schedules the periodic invoice status sweep.
type SweepConfig struct {
	Enabled  bool
	Schedule string `validate:"required_if=Enabled true"`
}

type MailConfig struct {
	Provider        string `validate:"oneof=log smtp sendgrid"`
	From            string `validate:"required_unless=Provider log"`
	FromName        string
	SMTPHost        string `validate:"required_if=Provider smtp"`
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SendGridAPIKey  string `validate:"required_if=Provider sendgrid"`
	SendGridSandbox bool
}

type MetricsConfig struct {
	Namespace string `validate:"required"`
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("PORT", 8080),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "ledger.db"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Billing: BillingConfig{
			InvoiceDueDays: getEnvAsInt("INVOICE_DUE_DAYS", 5),
		},
		Sweep: SweepConfig{
			Enabled:  getEnvAsBool("SWEEP_ENABLED", true),
			Schedule: getEnv("SWEEP_SCHEDULE", "0 * * * *"),
		},
		Mail: MailConfig{
			Provider:        strings.ToLower(getEnv("MAIL_PROVIDER", "log")),
			From:            getEnv("MAIL_FROM", ""),
			FromName:        getEnv("MAIL_FROM_NAME", "Rent Ledger"),
			SMTPHost:        getEnv("SMTP_HOST", ""),
			SMTPPort:        getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:    getEnv("SMTP_USERNAME", ""),
			SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
			SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),
			SendGridSandbox: getEnvAsBool("SENDGRID_SANDBOX", false),
		},
		Metrics: MetricsConfig{
			Namespace: getEnv("METRICS_NAMESPACE", "rent_ledger"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports the first offending field.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("invalid config %s: failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
