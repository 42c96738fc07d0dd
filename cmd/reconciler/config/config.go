// Package config assembles runtime configuration for the reconciler CLI from
// flags, environment variables and an optional config file, all resolved
// through viper.
package config

import (
	"strings"

	"claims-reconciliation-service/internal/reporter"
	"claims-reconciliation-service/internal/store"
	apperrors "claims-reconciliation-service/pkg/errors"
	"claims-reconciliation-service/pkg/logger"

	"github.com/spf13/viper"
)

// Config holds the resolved runtime settings for one reconciliation run
type Config struct {
	DatabaseURL  string
	Currency     string
	CreatedBy    string
	DryRun       bool
	AutoMigrate  bool
	OutputFormat string
	LogLevel     string
	LogFormat    string
}

// Load resolves configuration from viper. Flag bindings and environment
// variables are set up by the cmd package before this runs.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:  viper.GetString("database-url"),
		Currency:     strings.ToUpper(viper.GetString("currency")),
		CreatedBy:    viper.GetString("created-by"),
		DryRun:       viper.GetBool("dry-run"),
		AutoMigrate:  viper.GetBool("auto-migrate"),
		OutputFormat: viper.GetString("output-format"),
		LogLevel:     viper.GetString("log-level"),
		LogFormat:    viper.GetString("log-format"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return apperrors.ConfigError(apperrors.CodeMissingConfig,
			"database-url is required (flag --database-url or RECONCILER_DATABASE_URL)")
	}

	if strings.TrimSpace(c.Currency) == "" {
		return apperrors.ConfigError(apperrors.CodeMissingConfig, "currency cannot be empty")
	}

	if !reporter.OutputFormat(c.OutputFormat).IsValid() {
		return apperrors.ConfigError(apperrors.CodeInvalidConfig,
			"invalid output format '"+c.OutputFormat+"', valid formats: console, json")
	}

	return nil
}

// StoreConfig builds the store configuration
func (c *Config) StoreConfig() *store.Config {
	return &store.Config{
		DatabaseURL: c.DatabaseURL,
		AutoMigrate: c.AutoMigrate,
	}
}

// LoggerConfig builds the logger configuration
func (c *Config) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.Level(c.LogLevel),
		Format: logger.Format(c.LogFormat),
	}
}

// ReporterConfig builds the reporter configuration
func (c *Config) ReporterConfig() *reporter.Config {
	return &reporter.Config{
		Format:             reporter.OutputFormat(c.OutputFormat),
		IncludeDiagnostics: true,
	}
}
