// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package config loads the settings shared by the grid executables.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/potatogrid/go-potatogrid/gridsession"
	"github.com/potatogrid/go-potatogrid/gridstore"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Environment overrides
const (
	EnvSQLitePath  = "POTATOGRID_SQLITE_PATH"
	EnvDatabaseURL = "DATABASE_URL"
	EnvJWTSecret   = "JWT_SECRET"
	EnvLogLevel    = "POTATOGRID_LOG_LEVEL"
)

const DefaultJWTSecret = "your-secret-key-change-in-production"

// Config holds all settings of a grid executable
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
	Server  ServerConfig  `yaml:"server"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	DatabaseURL string `yaml:"database_url" validate:"required_if=Driver postgres"`
	// Seed rows are inserted when the table is empty
	Seed []RecordConfig `yaml:"seed" validate:"dive"`
}

// RecordConfig describes a row in configuration files
type RecordConfig struct {
	Title     string  `yaml:"title" validate:"required,max=200"`
	Category  string  `yaml:"category" validate:"max=100"`
	Value     float64 `yaml:"value"`
	ImageRef  string  `yaml:"image_ref" validate:"max=200"`
	Deletable bool    `yaml:"deletable"`
}

func (r RecordConfig) Record() gridstore.Record {
	return gridstore.Record{
		Title:     r.Title,
		Category:  r.Category,
		Value:     r.Value,
		ImageRef:  r.ImageRef,
		Deletable: r.Deletable,
	}
}

type SessionConfig struct {
	DebounceWindow   time.Duration `yaml:"debounce_window" validate:"gte=0"`
	NewRecord        RecordConfig  `yaml:"new_record"`
	ImageOptions     []string      `yaml:"image_options" validate:"dive,required"`
	DefaultDeletable bool          `yaml:"default_deletable"`
	LogStageTimings  bool          `yaml:"log_stage_timings"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" validate:"required"`
	JWTSecret      string        `yaml:"jwt_secret" validate:"required,min=8"`
	TokenTTL       time.Duration `yaml:"token_ttl" validate:"gt=0"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	MetricsEnabled bool          `yaml:"metrics_enabled"`
	RequestLogging bool          `yaml:"request_logging"`
}

// DefaultConfig returns a configuration for a local SQLite grid
func DefaultConfig() *Config {
	session := gridsession.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "potatogrid.db",
			Seed: []RecordConfig{
				{Title: "Baked Potato", Value: 100, ImageRef: "BakedPotato", Deletable: false},
			},
		},
		Session: SessionConfig{
			DebounceWindow: session.DebounceWindow,
			NewRecord: RecordConfig{
				Title:     session.NewRecord.Title,
				Category:  session.NewRecord.Category,
				Value:     session.NewRecord.Value,
				Deletable: session.NewRecord.Deletable,
			},
			ImageOptions:     session.ImageOptions,
			DefaultDeletable: session.DefaultDeletable,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			JWTSecret:      DefaultJWTSecret,
			TokenTTL:       time.Hour,
			CORSOrigins:    []string{"http://localhost:3000"},
			MetricsEnabled: true,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the YAML file at path over the defaults, then applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSQLitePath); ok && v != "" {
		c.Storage.SQLitePath = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Storage.DatabaseURL = v
		c.Storage.Driver = DriverPostgres
	}
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.Server.JWTSecret = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(c.Session.ImageOptions) > 0 {
		for _, seed := range c.Storage.Seed {
			if seed.ImageRef != "" && !slices.Contains(c.Session.ImageOptions, seed.ImageRef) {
				return fmt.Errorf("invalid configuration: seed %q uses unknown image %q", seed.Title, seed.ImageRef)
			}
		}
	}
	return nil
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format and level
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SeedRecords returns the rows inserted into an empty table
func (c *Config) SeedRecords() []gridstore.Record {
	out := make([]gridstore.Record, len(c.Storage.Seed))
	for i, seed := range c.Storage.Seed {
		out[i] = seed.Record()
	}
	return out
}

// SessionConfig converts the session settings for gridsession
func (c *Config) SessionConfig(metrics gridsession.StageMetricsRecorder) *gridsession.Config {
	cfg := gridsession.DefaultConfig()
	cfg.DebounceWindow = c.Session.DebounceWindow
	cfg.NewRecord = c.Session.NewRecord.Record()
	cfg.ImageOptions = slices.Clone(c.Session.ImageOptions)
	cfg.DefaultDeletable = c.Session.DefaultDeletable
	cfg.LogStageTimings = c.Session.LogStageTimings
	cfg.StageMetrics = metrics
	return cfg
}

// OpenStore opens the configured store and seeds it when empty
func (c *Config) OpenStore(ctx context.Context, logger *slog.Logger) (gridstore.Store, error) {
	var (
		store gridstore.Store
		err   error
	)
	switch c.Storage.Driver {
	case DriverPostgres:
		store, err = gridstore.OpenPostgres(ctx, c.Storage.DatabaseURL, logger)
	default:
		store, err = gridstore.OpenSQLite(c.Storage.SQLitePath, logger)
	}
	if err != nil {
		return nil, err
	}

	if _, err := gridstore.SeedIfEmpty(ctx, store, c.SeedRecords(), logger); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
