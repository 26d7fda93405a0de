// Package config loads bookshelf configuration from command-line flags, environment variables and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Store     StoreConfig
	Seed      SeedConfig
	Orphans   OrphanConfig
	Server    ServerConfig
	RateLimit RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StoreConfig locates the on-disk state.
type StoreConfig struct {
	DataPath string // root directory; database in {data}/db, search index in {data}/search
	InMemory bool   // keep everything in memory, nothing survives restart
}

// DBPath returns the key-value store directory.
func (s StoreConfig) DBPath() string {
	if s.InMemory {
		return ""
	}
	return filepath.Join(s.DataPath, "db")
}

// SearchPath returns the full-text index directory. Empty means in-memory.
func (s StoreConfig) SearchPath() string {
	if s.InMemory {
		return ""
	}
	return filepath.Join(s.DataPath, "search")
}

// SeedConfig controls first-run loading of the default dataset.
type SeedConfig struct {
	Enabled bool
	File    string // optional override of the embedded dataset
}

// OrphanConfig selects which entity kinds are deleted once no book links to them.
type OrphanConfig struct {
	PruneAuthors bool
	PruneTags    bool
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
	// MaxUploadBytes caps book create and update request bodies, which carry
	// attachments inline as base64 data URLs.
	MaxUploadBytes int64
}

// RateLimitConfig bounds mutating requests per client.
type RateLimitConfig struct {
	WritesPerSecond float64
	Burst           int
}

const defaultMaxUploadBytes = 64 << 20

// LoadConfig loads configuration from os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("bookshelf", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for database and search index")
	inMemory := fs.String("in-memory", "", "Keep all data in memory (default: false)")
	seedFile := fs.String("seed-file", "", "JSON dataset loaded on first run instead of the bundled one")
	seedEnabled := fs.String("seed", "", "Load the default dataset on first run (default: true)")
	pruneAuthors := fs.String("prune-orphan-authors", "", "Delete authors no book links to (default: true)")
	pruneTags := fs.String("prune-orphan-tags", "", "Delete tags no book links to (default: false)")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed origins (default: *)")
	maxUpload := fs.String("max-upload-bytes", "", "Largest accepted book request body in bytes (default: 64 MiB)")
	writeRate := fs.String("write-rate", "", "Mutating requests per second per client (default: 10)")
	writeBurst := fs.String("write-burst", "", "Burst of mutating requests per client (default: 20)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if *envFile != "" {
		if err := loadEnvFile(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
			InMemory: getBoolConfigValue(*inMemory, "DB_IN_MEMORY", false),
		},
		Seed: SeedConfig{
			Enabled: getBoolConfigValue(*seedEnabled, "SEED_ENABLED", true),
			File:    getConfigValue(*seedFile, "SEED_FILE", ""),
		},
		Orphans: OrphanConfig{
			PruneAuthors: getBoolConfigValue(*pruneAuthors, "PRUNE_ORPHAN_AUTHORS", true),
			PruneTags:    getBoolConfigValue(*pruneTags, "PRUNE_ORPHAN_TAGS", false),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins:    splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			MaxUploadBytes: int64(getIntConfigValue(*maxUpload, "MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		},
		RateLimit: RateLimitConfig{
			WritesPerSecond: getFloatConfigValue(*writeRate, "WRITE_RATE_LIMIT", 10),
			Burst:           getIntConfigValue(*writeBurst, "WRITE_RATE_BURST", 20),
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = getDurationConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	// Uploads carry whole documents as data URLs, so writes get more time.
	if cfg.Server.WriteTimeout, err = getDurationConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid write timeout: %w", err)
	}
	if cfg.Server.IdleTimeout, err = getDurationConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid idle timeout: %w", err)
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if cfg.Seed.File != "" {
		if cfg.Seed.File, err = expandPath(cfg.Seed.File, ""); err != nil {
			return nil, fmt.Errorf("invalid seed file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if !c.Store.InMemory && c.Store.DataPath == "" {
		return errors.New("data path cannot be empty unless running in memory")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}

	if c.RateLimit.WritesPerSecond <= 0 {
		return fmt.Errorf("write rate limit must be positive, got %v", c.RateLimit.WritesPerSecond)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("write burst must be at least 1, got %d", c.RateLimit.Burst)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults to ~/Bookshelf when no path is configured.
func (c *Config) expandDataPath() error {
	if c.Store.InMemory && c.Store.DataPath == "" {
		return nil
	}

	var defaultPath string
	if c.Store.DataPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		defaultPath = filepath.Join(homeDir, "Bookshelf")
	}

	expanded, err := expandPath(c.Store.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Store.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", strValue, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Variables already set to a non-empty value win over the file.
func loadEnvFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return err
	}

	for key, value := range values {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}
	return nil
}
