// Package config defines the runner's flag/env-driven configuration,
// grounded on the teacher's cmd/server/main.go config struct and
// envOrDefault pattern.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Config holds every setting cmd/runner's single process needs: listen
// address, storage backend, the shared bearer token gating both HTTP
// surfaces, and actor lifecycle tuning.
type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	LogLevel string

	AuthToken      string
	RunnerID       string
	AdvertiseAddr  string
	ClientEndpoint string

	RunnerHeartbeatTimeout int // seconds
}

// RegisterFlags binds cfg's fields to root's persistent flags, defaulting
// each from its environment variable the way the teacher's
// newRootCmd/envOrDefault pair does.
func RegisterFlags(root *cobra.Command, cfg *Config) {
	root.PersistentFlags().StringVar(&cfg.HTTPAddr, "http-addr", envOrDefault("RIVET_HTTP_ADDR", ":8080"), "HTTP listen address for both the manager and actor surfaces")
	root.PersistentFlags().StringVar(&cfg.DBDriver, "db-driver", envOrDefault("RIVET_DB_DRIVER", "sqlite"), "Storage driver (memory, sqlite, or postgres)")
	root.PersistentFlags().StringVar(&cfg.DBDSN, "db-dsn", envOrDefault("RIVET_DB_DSN", "./rivetkit.db"), "Database DSN or file path for sqlite")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", envOrDefault("RIVET_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.AuthToken, "auth-token", envOrDefault("RIVET_AUTH_TOKEN", ""), "Shared bearer token gating both HTTP surfaces (empty = disabled, dev only)")
	root.PersistentFlags().StringVar(&cfg.RunnerID, "runner-id", envOrDefault("RIVET_RUNNER_ID", ""), "This process's runner id (defaults to a generated id)")
	root.PersistentFlags().StringVar(&cfg.AdvertiseAddr, "advertise-addr", envOrDefault("RIVET_ADVERTISE_ADDR", ""), "Address other runners should use to reach this one (defaults to http://localhost<http-addr>)")
	root.PersistentFlags().StringVar(&cfg.ClientEndpoint, "client-endpoint", envOrDefault("RIVET_CLIENT_ENDPOINT", ""), "Endpoint reported to clients on GET /metadata")
	root.PersistentFlags().IntVar(&cfg.RunnerHeartbeatTimeout, "runner-heartbeat-timeout", 15, "Seconds of missed heartbeats before a runner is considered dead")
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	if c.DBDriver != "memory" && c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		return fmt.Errorf("config: unsupported db-driver %q, use \"memory\", \"sqlite\", or \"postgres\"", c.DBDriver)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
