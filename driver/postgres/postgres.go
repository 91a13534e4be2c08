package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/root-talis/sakusei/driver"
	"github.com/root-talis/sakusei/migration"
)

type DriverConfig struct {
	SchemaName          string // defaults to public
	MigrationsTableName string
}

type postgresDriver struct {
	pool   *pgxpool.Pool
	config DriverConfig
}

func NewDriver(pool *pgxpool.Pool, config DriverConfig) driver.Driver {
	if config.SchemaName == "" {
		config.SchemaName = "public"
	}

	return &postgresDriver{
		pool:   pool,
		config: config,
	}
}

func (drv *postgresDriver) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	tableName := drv.makeEscapedMigrationsTableName()

	if err := drv.ensureMigrationsTableExists(ctx, drv.pool, tableName); err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}

	rows, err := drv.pool.Query(ctx, fmt.Sprintf(
		"SELECT schema_name, version_name, direction, checksum, start_time FROM %s ORDER BY id",
		tableName,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}
	defer rows.Close()

	result := make([]migration.Log, 0)
	for rows.Next() {
		var log migration.Log
		var direction string
		var appliedAt time.Time

		if err := rows.Scan(&log.Schema, &log.Version, &direction, &log.Checksum, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to query migrations log table: %w", err)
		}

		switch direction {
		case "u":
			log.Direction = migration.Up
		case "d":
			log.Direction = migration.Down
		default:
			return nil, fmt.Errorf("%w: direction \"%s\" is unknown", driver.ErrInvalidLogTable, direction)
		}
		log.AppliedAt = appliedAt.UTC()

		result = append(result, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query migrations log table: %w", err)
	}

	return result, nil
}

// Migrate runs the script and logs it in a single transaction.
func (drv *postgresDriver) Migrate(ctx context.Context, mig migration.Migration, dir migration.Direction, script string) error {
	tableName := drv.makeEscapedMigrationsTableName()

	tx, err := drv.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin %s migration %s: %w", dir, mig, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := drv.ensureMigrationsTableExists(ctx, tx, tableName); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", mig, err)
	}

	startTime := time.Now().UTC()

	// no arguments, so pgx sends it over the simple protocol and
	// multi-statement scripts are accepted
	if _, err := tx.Exec(ctx, script); err != nil {
		return fmt.Errorf("failed to run %s migration %s: %w", dir, mig, err)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (schema_name, version_name, direction, checksum, start_time, end_time) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		tableName,
	),
		mig.Schema,
		mig.Version,
		string(dir),
		migration.Checksum(script),
		startTime,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to log %s migration %s: %w", dir, mig, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s migration %s: %w", dir, mig, err)
	}

	return nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (drv *postgresDriver) makeEscapedMigrationsTableName() string {
	return pgx.Identifier{drv.config.SchemaName, drv.config.MigrationsTableName}.Sanitize()
}

func (drv *postgresDriver) ensureMigrationsTableExists(ctx context.Context, conn execer, escapedTableName string) error {
	_, err := conn.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"id           bigserial primary key, "+
			"schema_name  varchar(100) not null, "+
			"version_name varchar(100) not null, "+
			"direction    char(1) not null, "+ // "u" or "d"
			"checksum     varchar(32) not null, "+
			"start_time   timestamptz default now() not null, "+
			"end_time     timestamptz null"+
			")",
		escapedTableName,
	))

	if err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", escapedTableName, err)
	}

	return nil
}
