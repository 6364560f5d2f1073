package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller on the returned struct.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults matching DefaultConfig
	d := DefaultConfig()
	v.SetDefault("engine.timezone", d.Engine.Timezone)
	v.SetDefault("engine.max_depth", d.Engine.MaxDepth)
	v.SetDefault("engine.max_nodes", d.Engine.MaxNodes)
	v.SetDefault("engine.max_in_values", d.Engine.MaxInValues)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.max_rows", d.Server.MaxRows)

	// Bind environment variables with SIEVE_ prefix
	v.SetEnvPrefix("SIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Security check: credentials must come from the environment
		if err := validateNoSecretsInConfig(configPath); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Engine: EngineConfig{
			Timezone:    v.GetString("engine.timezone"),
			MaxDepth:    v.GetInt("engine.max_depth"),
			MaxNodes:    v.GetInt("engine.max_nodes"),
			MaxInValues: v.GetInt("engine.max_in_values"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Catalog:  CatalogConfig{Path: v.GetString("catalog.path")},
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxRows:        v.GetInt("server.max_rows"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks port range, positive limits and a loadable timezone.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxRows <= 0 {
		return fmt.Errorf("max_rows must be positive, got %d", cfg.Server.MaxRows)
	}
	if cfg.Engine.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", cfg.Engine.MaxDepth)
	}
	if cfg.Engine.MaxNodes <= 0 {
		return fmt.Errorf("max_nodes must be positive, got %d", cfg.Engine.MaxNodes)
	}
	if cfg.Engine.MaxInValues <= 0 {
		return fmt.Errorf("max_in_values must be positive, got %d", cfg.Engine.MaxInValues)
	}
	if _, err := cfg.Engine.Location(); err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url must not be empty")
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only credentials: a
// database URL written to the config file must not carry a password.
func validateNoSecretsInConfig(configPath string) error {
	file := viper.New()
	file.SetConfigFile(configPath)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if !file.IsSet("database.url") {
		return nil
	}
	u, err := url.Parse(file.GetString("database.url"))
	if err != nil {
		return nil
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return fmt.Errorf("database passwords not allowed in config files (use SIEVE_DATABASE_URL environment variable)")
	}
	return nil
}
