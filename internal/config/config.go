// Package config loads tally settings from .tally/config.yaml and TALLY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file lives, relative to the project root.
var DefaultPath = filepath.Join(".tally", "config.yaml")

// Config holds settings shared by every tally command.
type Config struct {
	// Ledger is the event ledger path. A .db or .sqlite suffix selects the
	// SQLite backend; anything else is JSON Lines.
	// Default: .tally/events.jsonl
	Ledger string `yaml:"ledger"`

	// Board is the persisted projection checked by verify.
	// Default: .tally/BOARD.md
	Board string `yaml:"board"`

	// Strict makes verify exit non-zero on drift.
	// Default: false
	Strict bool `yaml:"strict"`

	// MaxDiffLines bounds the diff in a drift report.
	// Default: 120, Range: 1-10000
	MaxDiffLines int `yaml:"max_diff_lines"`

	// LowConfidenceGap is the top-gap threshold under which a selection is
	// flagged as low confidence.
	// Default: 5.0, must be > 0
	LowConfidenceGap float64 `yaml:"low_confidence_gap"`

	// ScoreboardSize is how many ranked rows a rationale carries.
	// Default: 5, Range: 1-100
	ScoreboardSize int `yaml:"scoreboard_size"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Ledger:           filepath.Join(".tally", "events.jsonl"),
		Board:            filepath.Join(".tally", "BOARD.md"),
		Strict:           false,
		MaxDiffLines:     120,
		LowConfidenceGap: 5.0,
		ScoreboardSize:   5,
		LogLevel:         "info",
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return cfg, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
//
// Environment variables:
//   - TALLY_LEDGER: ledger path
//   - TALLY_BOARD: persisted board path
//   - TALLY_STRICT: exit non-zero on drift (true/false)
//   - TALLY_MAX_DIFF_LINES: diff bound
//   - TALLY_LOW_CONFIDENCE_GAP: low-confidence threshold
//   - TALLY_SCOREBOARD_SIZE: rationale scoreboard rows
//   - TALLY_LOG_LEVEL: debug, info, warn or error
func (c *Config) ApplyEnv() error {
	if err := parseEnvString("TALLY_LEDGER", &c.Ledger); err != nil {
		return err
	}
	if err := parseEnvString("TALLY_BOARD", &c.Board); err != nil {
		return err
	}
	if err := parseEnvBool("TALLY_STRICT", &c.Strict); err != nil {
		return err
	}
	if err := parseEnvInt("TALLY_MAX_DIFF_LINES", &c.MaxDiffLines); err != nil {
		return err
	}
	if err := parseEnvFloat("TALLY_LOW_CONFIDENCE_GAP", &c.LowConfidenceGap); err != nil {
		return err
	}
	if err := parseEnvInt("TALLY_SCOREBOARD_SIZE", &c.ScoreboardSize); err != nil {
		return err
	}
	return parseEnvString("TALLY_LOG_LEVEL", &c.LogLevel)
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if strings.TrimSpace(c.Ledger) == "" {
		return fmt.Errorf("ledger path is required")
	}
	if strings.TrimSpace(c.Board) == "" {
		return fmt.Errorf("board path is required")
	}
	if c.MaxDiffLines < 1 || c.MaxDiffLines > 10000 {
		return fmt.Errorf("max_diff_lines must be between 1 and 10000 (got %d)", c.MaxDiffLines)
	}
	if c.LowConfidenceGap <= 0 {
		return fmt.Errorf("low_confidence_gap must be positive (got %v)", c.LowConfidenceGap)
	}
	if c.ScoreboardSize < 1 || c.ScoreboardSize > 100 {
		return fmt.Errorf("scoreboard_size must be between 1 and 100 (got %d)", c.ScoreboardSize)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level. Invalid levels map to info;
// Validate reports them.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Ledger: %s, Board: %s, Strict: %t, MaxDiffLines: %d, "+
			"LowConfidenceGap: %v, ScoreboardSize: %d, LogLevel: %s}",
		c.Ledger, c.Board, c.Strict, c.MaxDiffLines,
		c.LowConfidenceGap, c.ScoreboardSize, c.LogLevel,
	)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error (got %q)", s)
}

func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvString(key string, dest *string) error {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
	return nil
}
