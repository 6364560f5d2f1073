// Package config provides configuration management for the sieve service.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/solatis/sieve/internal/types"
)

// Config is the full service configuration.
type Config struct {
	Engine   EngineConfig
	Database DatabaseConfig
	Catalog  CatalogConfig
	Server   ServerConfig
}

// EngineConfig holds rule compiler settings.
type EngineConfig struct {
	Timezone    string
	MaxDepth    int
	MaxNodes    int
	MaxInValues int
}

// Location loads the configured IANA timezone.
func (e EngineConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid engine.timezone %q: %w", e.Timezone, err)
	}
	return loc, nil
}

// Limits converts the engine settings to compiler limits.
func (e EngineConfig) Limits() types.Limits {
	return types.Limits{
		MaxDepth:    e.MaxDepth,
		MaxNodes:    e.MaxNodes,
		MaxInValues: e.MaxInValues,
	}
}

// DatabaseConfig holds the connection URL (sqlite:// or postgres://).
type DatabaseConfig struct {
	URL string
}

// CatalogConfig points at a resource catalog file. Empty uses the embedded default.
type CatalogConfig struct {
	Path string
}

// ServerConfig holds configuration for the gRPC filter service.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxRows        int
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Timezone:    "UTC",
			MaxDepth:    types.DefaultMaxDepth,
			MaxNodes:    types.DefaultMaxNodes,
			MaxInValues: types.DefaultMaxInValues,
		},
		Database: DatabaseConfig{URL: "sqlite://sieve.db"},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50061,
			RequestTimeout: 30 * time.Second,
			MaxRows:        500,
		},
	}
}

// NewLogger builds the process logger. level is debug, info, warn or error;
// format is json or text.
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected json or text)", format)
	}
}
