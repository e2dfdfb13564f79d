/*
Package config loads server configuration.

SOURCES (highest priority first):
  1. Command-line flags
  2. Environment variables
  3. Defaults

FLAGS / ENVIRONMENT:
  -port             PORT              HTTP port (default 8080)
  -db               DB_DIR            Directory of per-chat databases, or ":memory:" (default ./data)
  -log-level        LOG_LEVEL         debug | info | warn | error (default info)
  -shutdown-timeout SHUTDOWN_TIMEOUT  Graceful shutdown window (default 30s)
  -cors-origins     CORS_ORIGINS      Comma-separated allowed origins
  -max-open-chats   MAX_OPEN_CHATS    Idle chat databases kept open, 0 = no limit (default 64)
*/
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort            = 8080
	defaultDataDir         = "./data"
	defaultLogLevel        = "info"
	defaultShutdownTimeout = 30 * time.Second
	defaultOrigins         = "http://localhost:5173,http://localhost:8080"
	defaultMaxOpenChats    = 64
)

// Config is the runtime configuration of the server.
type Config struct {
	Port            int
	DataDir         string
	LogLevel        string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxOpenChats    int
}

// Load parses args (without the program name) over environment defaults.
func Load(args []string) (Config, error) {
	port := defaultPort
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	shutdown := defaultShutdownTimeout
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		shutdown = d
	}

	maxOpen := defaultMaxOpenChats
	if v := os.Getenv("MAX_OPEN_CHATS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAX_OPEN_CHATS: %w", err)
		}
		maxOpen = n
	}

	var cfg Config
	var origins string

	fs := flag.NewFlagSet("debt-ledger", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", port, "HTTP server port")
	fs.StringVar(&cfg.DataDir, "db", getEnv("DB_DIR", defaultDataDir), `directory of per-chat SQLite files, or ":memory:"`)
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", defaultLogLevel), "log level: debug, info, warn, error")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", shutdown, "graceful shutdown timeout")
	fs.StringVar(&origins, "cors-origins", getEnv("CORS_ORIGINS", defaultOrigins), "comma-separated CORS origins")
	fs.IntVar(&cfg.MaxOpenChats, "max-open-chats", maxOpen, "idle chat databases kept open (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("port out of range: %d", cfg.Port)
	}
	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("db directory must be set")
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be positive")
	}
	if cfg.MaxOpenChats < 0 {
		return Config{}, fmt.Errorf("max open chats must not be negative: %d", cfg.MaxOpenChats)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.AllowedOrigins = splitList(origins)

	return cfg, nil
}

// Address returns the listen address.
func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
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
