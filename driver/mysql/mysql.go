package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/root-talis/sakusei/driver"
	"github.com/root-talis/sakusei/migration"
)

const timeLayout = "2006-01-02 15:04:05"

type DriverConfig struct {
	DatabaseName        string
	MigrationsTableName string
}

// mysqlDriver needs a connection opened with multiStatements=true, since
// generated scripts hold several statements.
type mysqlDriver struct {
	conn   *sql.DB
	config DriverConfig
}

func NewDriver(conn *sql.DB, config DriverConfig) driver.Driver {
	return &mysqlDriver{
		conn:   conn,
		config: config,
	}
}

func (drv *mysqlDriver) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	tableName := drv.makeEscapedMigrationsTableName()

	if err := drv.ensureMigrationsTableExists(ctx, tableName); err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}

	rows, err := drv.query(ctx, fmt.Sprintf(
		"SELECT schema_name, version_name, direction, checksum, start_time FROM %s ORDER BY id",
		tableName,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}
	defer rows.Close()

	return drv.fetchMigrationsLog(rows)
}

// Migrate runs the script, then appends to the log. MySQL commits DDL
// implicitly, so a failed script may leave part of its changes behind.
func (drv *mysqlDriver) Migrate(ctx context.Context, mig migration.Migration, dir migration.Direction, script string) error {
	tableName := drv.makeEscapedMigrationsTableName()

	if err := drv.ensureMigrationsTableExists(ctx, tableName); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", mig, err)
	}

	startTime := time.Now().UTC()

	// MySQL rejects a query made of comments only
	if hasStatements(script) {
		if _, err := drv.conn.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("failed to run %s migration %s: %w", dir, mig, err)
		}
	}

	_, err := drv.conn.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (schema_name, version_name, direction, checksum, start_time, end_time) VALUES (?, ?, ?, ?, ?, ?)",
		tableName,
	),
		mig.Schema,
		mig.Version,
		string(dir),
		migration.Checksum(script),
		startTime.Format(timeLayout),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to log %s migration %s: %w", dir, mig, err)
	}

	return nil
}

func (drv *mysqlDriver) fetchMigrationsLog(rows *sql.Rows) ([]migration.Log, error) {
	result := make([]migration.Log, 0)
	for rows.Next() {
		var log migration.Log
		var appliedAt string
		var direction string

		err := rows.Scan(
			&log.Schema,
			&log.Version,
			&direction,
			&log.Checksum,
			&appliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query migrations log table: %w", err)
		}

		switch strings.ToLower(direction) {
		case "u":
			log.Direction = migration.Up
		case "d":
			log.Direction = migration.Down
		default:
			return nil, fmt.Errorf("%w: direction \"%s\" is unknown", driver.ErrInvalidLogTable, direction)
		}

		log.AppliedAt, err = time.Parse(timeLayout, appliedAt)
		if err != nil {
			log.AppliedAt = time.Time{}
		}

		result = append(result, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query migrations log table: %w", err)
	}

	return result, nil
}

func hasStatements(script string) bool {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}

func (drv *mysqlDriver) query(ctx context.Context, query string) (*sql.Rows, error) {
	rows, err := drv.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute a query: %w", err)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to execute a query: %w", err)
	}
	return rows, nil
}

func (drv *mysqlDriver) makeEscapedMigrationsTableName() string {
	return fmt.Sprintf(
		"`%s`.`%s`",
		escapeMysqlString(drv.config.DatabaseName),
		escapeMysqlString(drv.config.MigrationsTableName),
	)
}

func (drv *mysqlDriver) ensureMigrationsTableExists(ctx context.Context, escapedTableName string) error {
	_, err := drv.conn.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"id           int not null auto_increment, "+
			"schema_name  varchar(100) not null, "+
			"version_name varchar(100) not null, "+
			"direction    char(1) not null, "+ // "u" or "d"
			"checksum     char(32) not null, "+
			"start_time   datetime default CURRENT_TIMESTAMP not null, "+
			"end_time     datetime null, "+
			"primary key (id)"+
			") default charset utf8",
		escapedTableName,
	))

	if err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", escapedTableName, err)
	}

	return nil
}

// originally from https://gist.github.com/siddontang/8875771
func escapeMysqlString(sql string) string { //nolint:cyclop
	const prealloc = 2
	dest := make([]rune, 0, prealloc*len(sql))

	for _, character := range sql {
		var escape rune

		switch character {
		case 0:
			escape = '0'
		case '\n':
			escape = 'n'
		case '\r':
			escape = 'r'
		case '\\':
			escape = '\\'
		case '\'':
			escape = '\''
		case '"':
			escape = '"'
		case '`':
			escape = '`'
		case '\032':
			escape = 'Z'
		}

		if escape != 0 {
			dest = append(dest, '\\', escape)
		} else {
			dest = append(dest, character)
		}
	}

	return string(dest)
}
