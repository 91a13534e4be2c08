package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/root-talis/sakusei"
	"github.com/root-talis/sakusei/config"
	"github.com/root-talis/sakusei/render"
	"github.com/root-talis/sakusei/schema"
	"github.com/root-talis/sakusei/source/files"
	"github.com/root-talis/sakusei/storage"
	storagefiles "github.com/root-talis/sakusei/storage/files"
)

// options are the flags shared by every command. Empty values leave the
// configured setting alone.
type options struct {
	envFile   string
	schemaDir string
	sqlDir    string
	dialect   string
	logLevel  string
	schema    string
}

func bindOptions(fs *flag.FlagSet) *options {
	opts := &options{}
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file")
	fs.StringVar(&opts.schemaDir, "schema-dir", "", "Directory with *.schema.yaml definitions (SAKUSEI_SCHEMA_DIR)")
	fs.StringVar(&opts.sqlDir, "sql-dir", "", "Directory receiving generated SQL files (SAKUSEI_SQL_DIR)")
	fs.StringVar(&opts.dialect, "dialect", "", "SQL dialect: postgres or mysql (SAKUSEI_DIALECT)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (SAKUSEI_LOG_LEVEL)")
	fs.StringVar(&opts.schema, "schema", "", "Only handle the schema with this class name")
	return opts
}

type setup struct {
	cfg       *config.Config
	logger    *slog.Logger
	storage   storage.Storage
	generator *sakusei.Generator
}

func (o *options) setup() (*setup, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}

	override(&cfg.SchemaDir, o.schemaDir)
	override(&cfg.SQLDir, o.sqlDir)
	override(&cfg.Dialect, o.dialect)
	override(&cfg.LogLevel, o.logLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	dialect, err := render.DialectByName(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	st := storagefiles.NewFilesStorage()
	gen := sakusei.New(cfg.SQLDir, st,
		sakusei.WithRenderer(render.New(dialect)),
		sakusei.WithLogger(logger),
	)

	return &setup{
		cfg:       cfg,
		logger:    logger,
		storage:   st,
		generator: gen,
	}, nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// loadTables reads every definition, keeping only the -schema one when set.
func (s *setup) loadTables(only string) ([]schema.Table, error) {
	src, err := files.NewFilesSource(os.DirFS(s.cfg.SchemaDir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.cfg.SchemaDir, err)
	}

	tables, err := src.LoadTables()
	if err != nil {
		return nil, err
	}

	return s.selectTables(tables, only)
}

func (s *setup) selectTables(tables []schema.Table, only string) ([]schema.Table, error) {
	if only == "" {
		return tables, nil
	}

	for _, table := range tables {
		if table.ClassName == only {
			return []schema.Table{table}, nil
		}
	}
	return nil, fmt.Errorf("schema %s is not defined in %s", only, s.cfg.SchemaDir)
}

// schemaScope checks the -schema value against the loaded tables and returns
// it as a filter for migrator results.
func (s *setup) schemaScope(tables []schema.Table, only string) ([]string, error) {
	if only == "" {
		return nil, nil
	}
	if _, err := s.selectTables(tables, only); err != nil {
		return nil, err
	}
	return []string{only}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
