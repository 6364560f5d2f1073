package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Host != "0.0.0.0" {
			t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
		}
		if cfg.Server.Port != 50061 {
			t.Errorf("expected port 50061, got %d", cfg.Server.Port)
		}
		if cfg.Server.RequestTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.Server.RequestTimeout)
		}
		if cfg.Server.MaxRows != 500 {
			t.Errorf("expected max_rows 500, got %d", cfg.Server.MaxRows)
		}
		if cfg.Engine.Timezone != "UTC" {
			t.Errorf("expected timezone UTC, got %s", cfg.Engine.Timezone)
		}
		limits := cfg.Engine.Limits()
		if limits.MaxDepth != 16 || limits.MaxNodes != 256 || limits.MaxInValues != 64 {
			t.Errorf("unexpected limits %+v", limits)
		}
		if cfg.Database.URL != "sqlite://sieve.db" {
			t.Errorf("expected sqlite://sieve.db, got %s", cfg.Database.URL)
		}
		if cfg.Catalog.Path != "" {
			t.Errorf("expected empty catalog path, got %s", cfg.Catalog.Path)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("SIEVE_SERVER_PORT", "9999")
		t.Setenv("SIEVE_ENGINE_TIMEZONE", "Europe/Amsterdam")
		t.Setenv("SIEVE_ENGINE_MAX_IN_VALUES", "10")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.Server.Port)
		}
		if cfg.Engine.Timezone != "Europe/Amsterdam" {
			t.Errorf("expected Europe/Amsterdam, got %s", cfg.Engine.Timezone)
		}
		if cfg.Engine.MaxInValues != 10 {
			t.Errorf("expected max_in_values 10, got %d", cfg.Engine.MaxInValues)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `engine:
  max_depth: 8
server:
  request_timeout: 5s
catalog:
  path: /etc/sieve/catalog.yaml
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Engine.MaxDepth != 8 {
			t.Errorf("expected max_depth 8, got %d", cfg.Engine.MaxDepth)
		}
		if cfg.Server.RequestTimeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %v", cfg.Server.RequestTimeout)
		}
		if cfg.Catalog.Path != "/etc/sieve/catalog.yaml" {
			t.Errorf("unexpected catalog path %s", cfg.Catalog.Path)
		}
		if cfg.Engine.MaxNodes != 256 {
			t.Errorf("unset keys keep defaults, got max_nodes %d", cfg.Engine.MaxNodes)
		}
	})

	t.Run("environment beats config file", func(t *testing.T) {
		t.Setenv("SIEVE_SERVER_PORT", "8080")
		path := writeConfig(t, "server:\n  port: 9090\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected 8080, got %d", cfg.Server.Port)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(t.TempDir() + "/missing.yaml"); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
		want string
	}{
		{"port too large", "SIEVE_SERVER_PORT", "70000", "port must be between"},
		{"zero port", "SIEVE_SERVER_PORT", "0", "port must be between"},
		{"negative timeout", "SIEVE_SERVER_REQUEST_TIMEOUT", "-1s", "request_timeout must be positive"},
		{"zero max rows", "SIEVE_SERVER_MAX_ROWS", "0", "max_rows must be positive"},
		{"zero depth", "SIEVE_ENGINE_MAX_DEPTH", "0", "max_depth must be positive"},
		{"negative nodes", "SIEVE_ENGINE_MAX_NODES", "-5", "max_nodes must be positive"},
		{"zero in values", "SIEVE_ENGINE_MAX_IN_VALUES", "0", "max_in_values must be positive"},
		{"unknown timezone", "SIEVE_ENGINE_TIMEZONE", "Mars/Olympus", "invalid engine.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := LoadConfig("")
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig_RejectsPasswordInFile(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://sieve:hunter2@db:5432/sieve\n")

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for password in config file")
	}
	if err.Error() != "database passwords not allowed in config files (use SIEVE_DATABASE_URL environment variable)" {
		t.Fatalf("wrong error message: %v", err)
	}

	// The same URL from the environment is fine.
	t.Setenv("SIEVE_DATABASE_URL", "postgres://sieve:hunter2@db:5432/sieve")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !strings.Contains(cfg.Database.URL, "hunter2") {
		t.Errorf("expected env URL, got %s", cfg.Database.URL)
	}

	// A passwordless URL in the file is accepted.
	path = writeConfig(t, "database:\n  url: postgres://sieve@db:5432/sieve\n")
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", "json", &buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "resource", "deals")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "kept" || line["resource"] != "deals" {
		t.Errorf("unexpected log line %v", line)
	}

	buf.Reset()
	logger, err = NewLogger("DEBUG", "text", &buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Debug("compiled", "nodes", 3)
	if !strings.Contains(buf.String(), "msg=compiled nodes=3") {
		t.Errorf("unexpected text output %q", buf.String())
	}

	if _, err := NewLogger("loud", "json", &buf); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger("info", "xml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 50061}
	if got := s.Addr(); got != "127.0.0.1:50061" {
		t.Errorf("expected 127.0.0.1:50061, got %s", got)
	}
}
