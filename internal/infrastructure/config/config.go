// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for dimload configuration.
	DefaultConfigDir = ".dimload"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultSQLiteFile is the default SQLite warehouse file name.
	DefaultSQLiteFile = "warehouse.db"
	// DefaultPostgresSchema is the schema holding the warehouse tables.
	DefaultPostgresSchema = "dw"
)

// Warehouse drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// reNonIdentifier matches characters that aren't valid in an unquoted identifier.
	reNonIdentifier = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	Warehouse WarehouseConfig `yaml:"warehouse,omitempty"`
	SQLite    SQLiteConfig    `yaml:"sqlite,omitempty"`
	Postgres  PostgresConfig  `yaml:"postgres,omitempty"`
	Retry     RetryConfig     `yaml:"retry,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// WarehouseConfig selects the storage backend.
type WarehouseConfig struct {
	Driver string `yaml:"driver,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite warehouse.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database. Relative paths are
	// resolved against the project directory. Empty means .dimload/warehouse.db.
	Path string `yaml:"path,omitempty"`
}

// PostgresConfig holds configuration for the PostgreSQL warehouse.
type PostgresConfig struct {
	DSN    string `yaml:"dsn,omitempty"`
	Schema string `yaml:"schema,omitempty"`
}

// RetryConfig bounds retries of transient storage failures.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Warehouse: WarehouseConfig{
			Driver: DriverSQLite,
		},
		Postgres: PostgresConfig{
			Schema: DefaultPostgresSchema,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the .dimload directory in the given path.
// A .env file in basePath is read first; variables already set in the
// environment take precedence over it.
func Load(basePath string) (*Config, error) {
	if err := LoadEnvFile(basePath); err != nil {
		return nil, err
	}

	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'dimload init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadEnvFile loads basePath/.env into the process environment if it exists.
func LoadEnvFile(basePath string) error {
	envFile := filepath.Join(basePath, ".env")
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if driver := os.Getenv("DIMLOAD_DRIVER"); driver != "" {
		c.Warehouse.Driver = driver
	}
	if path := os.Getenv("DIMLOAD_SQLITE_PATH"); path != "" {
		c.SQLite.Path = path
	}
	if dsn := os.Getenv("DIMLOAD_POSTGRES_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	} else if dsn := os.Getenv("DATABASE_URL"); dsn != "" && c.Postgres.DSN == "" {
		c.Postgres.DSN = dsn
	}
	if schema := os.Getenv("DIMLOAD_POSTGRES_SCHEMA"); schema != "" {
		c.Postgres.Schema = schema
	}
	if level := os.Getenv("DIMLOAD_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if attempts := os.Getenv("DIMLOAD_RETRY_MAX_ATTEMPTS"); attempts != "" {
		n, err := strconv.Atoi(attempts)
		if err != nil {
			return fmt.Errorf("parsing DIMLOAD_RETRY_MAX_ATTEMPTS: %w", err)
		}
		c.Retry.MaxAttempts = n
	}
	return nil
}

// Validate checks that the configuration can be used to open a warehouse.
func (c *Config) Validate() error {
	var errs []error

	switch c.Warehouse.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres driver (or set DATABASE_URL)"))
		}
		if c.Postgres.Schema != "" && SanitizeIdentifier(c.Postgres.Schema) != c.Postgres.Schema {
			errs = append(errs, fmt.Errorf("postgres.schema %q is not a valid identifier (try %q)",
				c.Postgres.Schema, SanitizeIdentifier(c.Postgres.Schema)))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown warehouse.driver %q (want %s or %s)",
			c.Warehouse.Driver, DriverSQLite, DriverPostgres))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 0, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// SQLitePath returns the SQLite database path for a project directory.
func (c *Config) SQLitePath(basePath string) string {
	path := c.SQLite.Path
	if path == "" {
		return filepath.Join(basePath, DefaultConfigDir, DefaultSQLiteFile)
	}
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(basePath, path)
}

// PostgresSchema returns the configured schema or the default.
func (c *Config) PostgresSchema() string {
	if c.Postgres.Schema == "" {
		return DefaultPostgresSchema
	}
	return c.Postgres.Schema
}

// ConfigDir returns the path to the .dimload config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// Exists checks if a dimload config exists in the given path.
func Exists(basePath string) bool {
	_, err := os.Stat(ConfigFilePath(basePath))
	return err == nil
}

// SanitizeIdentifier converts a name to a lowercase SQL identifier.
func SanitizeIdentifier(name string) string {
	// Convert to lowercase
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	// Remove any characters that aren't alphanumeric or underscore
	name = reNonIdentifier.ReplaceAllString(name, "")

	// Remove consecutive underscores
	name = reMultipleUnderscores.ReplaceAllString(name, "_")

	// Trim leading/trailing underscores
	name = strings.Trim(name, "_")

	if name == "" {
		return DefaultPostgresSchema
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "s_" + name
	}

	return name
}
