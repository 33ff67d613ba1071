// Package config loads the versa command configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/versa/dialect"
)

type Config struct {
	Dialect     string        `yaml:"dialect"`
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	Catalog     string        `yaml:"catalog"`
	BatchSize   int           `yaml:"batch_size"`
	LivePointer bool          `yaml:"live_pointer"`
	Procedures  bool          `yaml:"procedures"`
	Projections bool          `yaml:"projections"`
	SlowQuery   time.Duration `yaml:"slow_query"`
	Pool        PoolConfig    `yaml:"pool"`
	Log         LogConfig     `yaml:"log"`
	Gen         GenConfig     `yaml:"gen"`
}

// PoolConfig sizes the connection pool. Zero values keep the
// database/sql defaults.
type PoolConfig struct {
	MaxOpen     int           `yaml:"max_open"`
	MaxIdle     int           `yaml:"max_idle"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type GenConfig struct {
	Package string `yaml:"package"`
	Output  string `yaml:"output"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Dialect: dialect.SQLite, DSN: "file:versa.db?_pragma=foreign_keys(1)", Catalog: "catalog.yaml"}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	c.Dialect = dialect.Normalize(strings.TrimSpace(c.Dialect))
	if c.Driver == "" {
		c.Driver = DriverName(c.Dialect)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Gen.Package == "" {
		c.Gen.Package = "model"
	}
	if c.Gen.Output == "" {
		c.Gen.Output = c.Gen.Package
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !slices.Contains(dialect.Names(), c.Dialect) {
		return fmt.Errorf("unsupported dialect: %q", c.Dialect)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn is required")
	}
	if strings.TrimSpace(c.Catalog) == "" {
		return fmt.Errorf("catalog is required")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative, got %d", c.BatchSize)
	}
	if c.SlowQuery < 0 {
		return fmt.Errorf("slow_query must not be negative, got %s", c.SlowQuery)
	}
	if c.Pool.MaxOpen < 0 || c.Pool.MaxIdle < 0 || c.Pool.MaxLifetime < 0 {
		return fmt.Errorf("pool settings must not be negative")
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %q", c.Log.Format)
	}
	return nil
}

// DriverName returns the database/sql driver registered for a dialect.
func DriverName(d string) string {
	switch d {
	case dialect.SQLServer:
		return "sqlserver"
	case dialect.Oracle:
		return "oracle"
	}
	return d
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("unsupported log level: %q", l.Level)
	}
	return lvl, nil
}

// Logger returns a logger writing to w in the configured format.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
