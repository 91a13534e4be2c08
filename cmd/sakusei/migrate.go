package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/root-talis/sakusei/config"
	"github.com/root-talis/sakusei/driver"
	"github.com/root-talis/sakusei/driver/mysql"
	"github.com/root-talis/sakusei/driver/postgres"
	"github.com/root-talis/sakusei/migration"
	"github.com/root-talis/sakusei/migrator"
	"github.com/root-talis/sakusei/schema"
)

var errSchemaRequired = errors.New("-schema is required")

// dbOptions are the database flags of the migrator commands.
type dbOptions struct {
	driver   string
	dsn      string
	logTable string
	database string
	strict   bool
}

func bindDBOptions(fs *flag.FlagSet) *dbOptions {
	opts := &dbOptions{}
	fs.StringVar(&opts.driver, "driver", "", "Database driver: mysql or postgres (SAKUSEI_DRIVER)")
	fs.StringVar(&opts.dsn, "dsn", "", "Database connection string (SAKUSEI_DSN)")
	fs.StringVar(&opts.logTable, "log-table", "", "Migrations log table (SAKUSEI_LOG_TABLE)")
	fs.StringVar(&opts.database, "database", "", "MySQL database or PostgreSQL schema of the log table (SAKUSEI_DATABASE)")
	fs.BoolVar(&opts.strict, "strict", false, "Refuse to upgrade while undeclared migrations are applied (SAKUSEI_STRICT)")
	return opts
}

func (o *dbOptions) apply(cfg *config.Config) error {
	override(&cfg.Driver, o.driver)
	override(&cfg.DSN, o.dsn)
	override(&cfg.LogTable, o.logTable)
	override(&cfg.Database, o.database)
	if o.strict {
		cfg.Strict = true
	}
	return cfg.ValidateDatabase()
}

// openDriver connects to the configured database. The returned func closes
// the connection.
func openDriver(ctx context.Context, cfg *config.Config) (driver.Driver, func(), error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		conn, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}

		drv := mysql.NewDriver(conn, mysql.DriverConfig{
			DatabaseName:        cfg.Database,
			MigrationsTableName: cfg.LogTable,
		})
		return drv, func() { _ = conn.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("create pg pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping pg: %w", err)
		}

		drv := postgres.NewDriver(pool, postgres.DriverConfig{
			SchemaName:          cfg.Database,
			MigrationsTableName: cfg.LogTable,
		})
		return drv, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown driver \"%s\"", config.ErrInvalidConfig, cfg.Driver)
	}
}

type migratorCommand struct {
	*setup
	migrator migrator.Migrator
	close    func()
}

func newMigratorCommand(ctx context.Context, opts *options, dbOpts *dbOptions) (*migratorCommand, error) {
	s, err := opts.setup()
	if err != nil {
		return nil, err
	}
	if err := dbOpts.apply(s.cfg); err != nil {
		return nil, err
	}

	drv, closeFn, err := openDriver(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	return &migratorCommand{
		setup: s,
		migrator: migrator.New(s.generator, s.storage, drv,
			migrator.WithLogger(s.logger),
			migrator.WithStrict(s.cfg.Strict),
		),
		close: closeFn,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := bindOptions(fs)
	dbOpts := bindDBOptions(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	cmd, err := newMigratorCommand(ctx, opts, dbOpts)
	if err != nil {
		return err
	}
	defer cmd.close()

	tables, err := cmd.loadTables("")
	if err != nil {
		return err
	}
	scope, err := cmd.schemaScope(tables, opts.schema)
	if err != nil {
		return err
	}

	result, err := cmd.migrator.Validate(ctx, tables)
	if err != nil {
		return err
	}

	printStatus(result.Filter(scope...))
	return nil
}

func printStatus(result *migrator.ValidationResult) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCHEMA\tVERSION\tSTATUS\tAPPLIED AT")
	for _, state := range result.Migrations {
		appliedAt := "-"
		if !state.AppliedAt.IsZero() {
			appliedAt = state.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", state.Schema, state.Version, state.Status, appliedAt)
	}
	_ = w.Flush()

	fmt.Fprintf(stdout, "\n%d applied, %d pending, %d missing, %d modified\n",
		result.AppliedCount, result.PendingCount, result.MissingCount, result.ModifiedCount)
}

func runUp(args []string) error {
	fs := flag.NewFlagSet("up", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := bindOptions(fs)
	dbOpts := bindDBOptions(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	cmd, err := newMigratorCommand(ctx, opts, dbOpts)
	if err != nil {
		return err
	}
	defer cmd.close()

	tables, err := cmd.loadTables("")
	if err != nil {
		return err
	}
	scope, err := cmd.schemaScope(tables, opts.schema)
	if err != nil {
		return err
	}

	applied, err := cmd.migrator.Upgrade(ctx, tables, scope...)
	printMigrations("applied", applied)
	return err
}

func runDown(args []string) error {
	fs := flag.NewFlagSet("down", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := bindOptions(fs)
	dbOpts := bindDBOptions(fs)
	toVersion := fs.String("to", schema.RootVersion, "Version to revert to; versions declared after it are reverted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.schema == "" {
		fs.Usage()
		return errSchemaRequired
	}

	ctx, cancel := signalContext()
	defer cancel()

	cmd, err := newMigratorCommand(ctx, opts, dbOpts)
	if err != nil {
		return err
	}
	defer cmd.close()

	tables, err := cmd.loadTables(opts.schema)
	if err != nil {
		return err
	}

	reverted, err := cmd.migrator.Downgrade(ctx, &tables[0], *toVersion)
	printMigrations("reverted", reverted)
	return err
}

func printMigrations(verb string, migrations []migration.Migration) {
	for _, mig := range migrations {
		fmt.Fprintf(stdout, "%s %s\n", verb, mig)
	}
	fmt.Fprintf(stdout, "%d migration(s) %s\n", len(migrations), verb)
}
