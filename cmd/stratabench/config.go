package main

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/strata/dialect"
)

// Config is the stratabench configuration file.
type Config struct {
	// Driver is the database/sql driver name: sqlite, postgres, pgx or mysql.
	Driver string `yaml:"driver"`

	// DSN is the data source name passed to the driver.
	DSN string `yaml:"dsn"`

	// CreateSchema creates the benchmark tables before seeding.
	CreateSchema bool `yaml:"create_schema,omitempty"`

	// LogLevel is the minimum level logged to stderr.
	LogLevel LogLevel `yaml:"log_level,omitempty"`

	// SlowThreshold marks statements slower than it as slow queries.
	SlowThreshold time.Duration `yaml:"slow_threshold,omitempty"`

	// Transactional flushes every scope with FlushTx.
	Transactional bool `yaml:"transactional,omitempty"`

	// Graph sizes the entity graph each scope builds.
	Graph GraphConfig `yaml:"graph,omitempty"`
}

// GraphConfig sizes the seeded graph.
type GraphConfig struct {
	// Scopes is the number of independent units of work seeded in parallel.
	Scopes int `yaml:"scopes,omitempty"`
	// Authors is the number of authors per scope.
	Authors int `yaml:"authors,omitempty"`
	// BooksPerAuthor is the number of books per author.
	BooksPerAuthor int `yaml:"books_per_author,omitempty"`
	// Tags is the number of tags per scope, linked to every book.
	Tags int `yaml:"tags,omitempty"`
}

// LogLevel is a slog.Level read from its name, e.g. "debug".
type LogLevel slog.Level

// UnmarshalYAML implements yaml.Unmarshaler for LogLevel.
func (l *LogLevel) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("log_level: expected a scalar, got %v", node.Tag)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(node.Value)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	*l = LogLevel(level)
	return nil
}

// MarshalYAML implements yaml.Marshaler for LogLevel.
func (l LogLevel) MarshalYAML() (any, error) {
	return slog.Level(l).String(), nil
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("stratabench: config error for %q (value: %v): %s", e.Option, e.Value, e.Message)
	}
	return fmt.Sprintf("stratabench: config error for %q: %s", e.Option, e.Message)
}

var drivers = []string{"sqlite", "postgres", "pgx", "mysql"}

// DefaultConfig returns the configuration used for omitted values.
func DefaultConfig() Config {
	return Config{
		Driver:        "sqlite",
		LogLevel:      LogLevel(slog.LevelInfo),
		SlowThreshold: 100 * time.Millisecond,
		Graph: GraphConfig{
			Scopes:         1,
			Authors:        10,
			BooksPerAuthor: 3,
			Tags:           5,
		},
	}
}

// LoadConfig reads and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	switch {
	case !slices.Contains(drivers, c.Driver):
		return &ConfigError{Option: "driver", Value: c.Driver, Message: fmt.Sprintf("expected one of %v", drivers)}
	case c.DSN == "":
		return &ConfigError{Option: "dsn", Message: "must not be empty"}
	case c.SlowThreshold < 0:
		return &ConfigError{Option: "slow_threshold", Value: c.SlowThreshold, Message: "must not be negative"}
	case c.Graph.Scopes < 1:
		return &ConfigError{Option: "graph.scopes", Value: c.Graph.Scopes, Message: "must be at least 1"}
	case c.Graph.Authors < 0 || c.Graph.BooksPerAuthor < 0 || c.Graph.Tags < 0:
		return &ConfigError{Option: "graph", Message: "sizes must not be negative"}
	}
	return nil
}

// Dialect returns the SQL dialect spoken by the configured driver.
func (c *Config) Dialect() string {
	return dialect.Normalize(c.Driver)
}
