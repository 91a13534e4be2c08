package driver

import (
	"context"
	"errors"

	"github.com/root-talis/sakusei/migration"
)

type Driver interface {
	ListMigrationsLog(ctx context.Context) ([]migration.Log, error)

	// Migrate runs the script and appends a row to the migrations log.
	// Drivers for databases with transactional DDL do both atomically.
	Migrate(ctx context.Context, mig migration.Migration, dir migration.Direction, script string) error
}

var ErrInvalidLogTable = errors.New("an error has occurred when reading log table")
