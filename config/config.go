// Package config reads sakusei settings from .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/root-talis/sakusei/render"
)

const (
	EnvSchemaDir = "SAKUSEI_SCHEMA_DIR"
	EnvSQLDir    = "SAKUSEI_SQL_DIR"
	EnvDialect   = "SAKUSEI_DIALECT"
	EnvDriver    = "SAKUSEI_DRIVER"
	EnvDSN       = "SAKUSEI_DSN"
	EnvLogTable  = "SAKUSEI_LOG_TABLE"
	EnvDatabase  = "SAKUSEI_DATABASE"
	EnvLogLevel  = "SAKUSEI_LOG_LEVEL"
	EnvStrict    = "SAKUSEI_STRICT"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	SchemaDir string
	SQLDir    string
	Dialect   string
	LogLevel  string

	// database settings, only needed by the migrator commands
	Driver   string
	DSN      string
	LogTable string
	Database string // MySQL database or PostgreSQL schema holding LogTable

	// Strict makes upgrades refuse to run while the log holds migrations
	// that are no longer declared.
	Strict bool
}

func Default() Config {
	return Config{
		SchemaDir: "schemas",
		SQLDir:    "sql",
		Dialect:   "postgres",
		LogLevel:  "info",
		LogTable:  "sakusei_migrations_log",
	}
}

// Load applies the given .env files (".env" when none are given) and then
// the environment on top of the defaults. Missing .env files are skipped.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := Default()
	setString(&cfg.SchemaDir, EnvSchemaDir)
	setString(&cfg.SQLDir, EnvSQLDir)
	setString(&cfg.Dialect, EnvDialect)
	setString(&cfg.LogLevel, EnvLogLevel)
	setString(&cfg.Driver, EnvDriver)
	setString(&cfg.DSN, EnvDSN)
	setString(&cfg.LogTable, EnvLogTable)
	setString(&cfg.Database, EnvDatabase)

	if value, ok := os.LookupEnv(EnvStrict); ok && value != "" {
		strict, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvStrict, err)
		}
		cfg.Strict = strict
	}

	return &cfg, nil
}

func setString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}

// Validate checks the generator settings. Database settings are checked by
// ValidateDatabase, since only some commands need them.
func (c *Config) Validate() error {
	var errs []error

	if c.SchemaDir == "" {
		errs = append(errs, fmt.Errorf("%w: schema directory is empty", ErrInvalidConfig))
	}
	if c.SQLDir == "" {
		errs = append(errs, fmt.Errorf("%w: sql directory is empty", ErrInvalidConfig))
	}
	if _, err := render.DialectByName(c.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) ValidateDatabase() error {
	var errs []error

	switch c.Driver {
	case DriverMySQL:
		if c.Database == "" {
			errs = append(errs, fmt.Errorf("%w: %s is required by the mysql driver", ErrInvalidConfig, EnvDatabase))
		}
	case DriverPostgres:
	case "":
		errs = append(errs, fmt.Errorf("%w: %s is not set", ErrInvalidConfig, EnvDriver))
	default:
		errs = append(errs, fmt.Errorf("%w: unknown driver \"%s\"", ErrInvalidConfig, c.Driver))
	}

	if c.DSN == "" {
		errs = append(errs, fmt.Errorf("%w: %s is not set", ErrInvalidConfig, EnvDSN))
	}
	if c.LogTable == "" {
		errs = append(errs, fmt.Errorf("%w: log table name is empty", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("%w: log level \"%s\"", ErrInvalidConfig, c.LogLevel)
	}
	return level, nil
}
