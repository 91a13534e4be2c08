// Package migrator applies generated migration files to a database and
// tracks them through the driver's migrations log.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/root-talis/sakusei"
	"github.com/root-talis/sakusei/driver"
	"github.com/root-talis/sakusei/migration"
	"github.com/root-talis/sakusei/schema"
	"github.com/root-talis/sakusei/storage"
)

// ---

type Migrator interface {
	Validate(ctx context.Context, tables []schema.Table) (*ValidationResult, error)
	Upgrade(ctx context.Context, tables []schema.Table, only ...string) ([]migration.Migration, error)
	Downgrade(ctx context.Context, table *schema.Table, toVersion string) ([]migration.Migration, error)
}

type ValidationResult struct {
	Migrations    []migration.State
	AppliedCount  uint
	PendingCount  uint
	MissingCount  uint
	ModifiedCount uint
}

// Filter keeps the rows of the given schemas and recounts them. With no
// schemas the result is returned as is.
func (r *ValidationResult) Filter(schemas ...string) *ValidationResult {
	if len(schemas) == 0 {
		return r
	}

	keep := make(map[string]struct{}, len(schemas))
	for _, name := range schemas {
		keep[name] = struct{}{}
	}

	result := ValidationResult{
		Migrations: make([]migration.State, 0, len(r.Migrations)),
	}
	for _, state := range r.Migrations {
		if _, ok := keep[state.Schema]; !ok {
			continue
		}

		switch state.Status {
		case migration.Applied:
			result.AppliedCount++
		case migration.Pending:
			result.PendingCount++
		case migration.Missing:
			result.MissingCount++
		case migration.Modified:
			result.ModifiedCount++
		}
		result.Migrations = append(result.Migrations, state)
	}

	return &result
}

var (
	ErrMigrationFileMissing = errors.New("migration file does not exist")
	ErrModifiedMigrations   = errors.New("applied migrations were modified")
	ErrMissingMigrations    = errors.New("applied migrations are not declared")
	ErrUnknownVersion       = errors.New("version is not declared")
)

// ---

type migratorImpl struct {
	generator *sakusei.Generator
	storage   storage.Storage
	driver    driver.Driver
	logger    *slog.Logger
	strict    bool
}

type Option func(*migratorImpl)

func WithLogger(l *slog.Logger) Option {
	return func(m *migratorImpl) { m.logger = l }
}

// WithStrict makes Upgrade fail while the log holds undeclared migrations.
func WithStrict(strict bool) Option {
	return func(m *migratorImpl) { m.strict = strict }
}

// ---

func New(gen *sakusei.Generator, st storage.Storage, drv driver.Driver, opts ...Option) Migrator {
	m := &migratorImpl{
		generator: gen,
		storage:   st,
		driver:    drv,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ---

// Validate lists every declared migration, in declaration order, followed by
// logged migrations that are no longer declared. Applied migrations of a
// table left out of tables are reported as Missing, so pass every table and
// narrow the result with Filter.
func (m *migratorImpl) Validate(ctx context.Context, tables []schema.Table) (*ValidationResult, error) {
	appliedMigrations, order, err := m.loadMigrationsFromDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	available := make([]migration.Description, 0)
	declared := make(map[migration.Migration]struct{})
	for i := range tables {
		for _, descr := range describe(&tables[i]) {
			available = append(available, descr)
			declared[descr.Migration] = struct{}{}
		}
	}

	result := ValidationResult{
		Migrations: make([]migration.State, 0, len(available)),
	}
	for _, availableMigration := range available {
		entry, ok := appliedMigrations[availableMigration.Migration]

		state := migration.State{
			Description: availableMigration,
			Status:      migration.Pending,
		}
		if ok {
			state.Status = entry.Status
			state.AppliedAt = entry.AppliedAt
		}

		if state.Status == migration.Applied {
			modified, err := m.isModified(tables, availableMigration.Migration, entry.checksum)
			if err != nil {
				return nil, err
			}
			if modified {
				state.Status = migration.Modified
			}
		}

		switch state.Status {
		case migration.Applied:
			result.AppliedCount++
		case migration.Modified:
			result.ModifiedCount++
		default:
			result.PendingCount++
		}

		result.Migrations = append(result.Migrations, state)
	}

	for _, mig := range order {
		applied := appliedMigrations[mig]
		if _, found := declared[mig]; found || applied.Status != migration.Applied {
			continue
		}

		result.Migrations = append(result.Migrations, migration.State{
			Description: migration.Description{Migration: mig, CanUndo: false},
			Status:      migration.Missing,
			AppliedAt:   applied.AppliedAt,
		})
		result.MissingCount++
	}

	return &result, nil
}

// Upgrade applies every pending migration in declaration order and returns
// the ones it applied. Nothing is applied while an applied file was modified.
// tables must hold every declared table; only limits the run to the named
// schemas.
func (m *migratorImpl) Upgrade(ctx context.Context, tables []schema.Table, only ...string) ([]migration.Migration, error) {
	all, err := m.Validate(ctx, tables)
	if err != nil {
		return nil, err
	}
	state := all.Filter(only...)

	if state.ModifiedCount > 0 {
		return nil, fmt.Errorf("%w: %d file(s), regenerate or revert them first", ErrModifiedMigrations, state.ModifiedCount)
	}

	for _, st := range state.Migrations {
		if st.Status == migration.Missing {
			m.logger.Warn("applied migration is not declared", "migration", st.Migration.String())
		}
	}
	if m.strict && state.MissingCount > 0 {
		return nil, fmt.Errorf("%w: %d migration(s)", ErrMissingMigrations, state.MissingCount)
	}

	applied := make([]migration.Migration, 0, state.PendingCount)
	for _, st := range state.Migrations {
		if st.Status != migration.Pending {
			continue
		}

		path := m.upFilePath(tables, st.Migration)
		if err := m.migrate(ctx, st.Migration, migration.Up, path); err != nil {
			return applied, err
		}
		applied = append(applied, st.Migration)
	}

	return applied, nil
}

// Downgrade reverts the table's applied versions declared after toVersion,
// latest first. Passing schema.RootVersion reverts every version; the root
// migration itself has no revert.
func (m *migratorImpl) Downgrade(ctx context.Context, table *schema.Table, toVersion string) ([]migration.Migration, error) {
	target := -1
	if toVersion != schema.RootVersion {
		for i, version := range table.Versions {
			if version.Name == toVersion {
				target = i
				break
			}
		}
		if target < 0 {
			return nil, fmt.Errorf("%w: %s@%s", ErrUnknownVersion, table.ClassName, toVersion)
		}
	}

	appliedMigrations, _, err := m.loadMigrationsFromDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	reverted := make([]migration.Migration, 0)
	for i := len(table.Versions) - 1; i > target; i-- {
		version := table.Versions[i]
		mig := migration.Migration{Schema: table.ClassName, Version: version.Name}

		if appliedMigrations[mig].Status != migration.Applied {
			continue
		}

		path := m.generator.VersionRevertFilePath(table, version)
		if err := m.migrate(ctx, mig, migration.Down, path); err != nil {
			return reverted, err
		}
		reverted = append(reverted, mig)
	}

	return reverted, nil
}

// ---

type appliedEntry struct {
	migration.State
	checksum string
}

// loadMigrationsFromDB folds the log into the latest state per migration.
// order keeps the first appearance of each migration in the log.
func (m *migratorImpl) loadMigrationsFromDB(ctx context.Context) (map[migration.Migration]appliedEntry, []migration.Migration, error) {
	migrations, err := m.driver.ListMigrationsLog(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load migrations from db: %w", err)
	}

	result := make(map[migration.Migration]appliedEntry, len(migrations))
	order := make([]migration.Migration, 0, len(migrations))
	for _, mig := range migrations {
		var status migration.Status
		var appliedAt time.Time
		var checksum string

		switch mig.Direction {
		case migration.Up:
			status = migration.Applied
			appliedAt = mig.AppliedAt
			checksum = mig.Checksum
		case migration.Down:
			status = migration.Pending
		}

		if _, seen := result[mig.Migration]; !seen {
			order = append(order, mig.Migration)
		}

		result[mig.Migration] = appliedEntry{
			State: migration.State{
				Description: migration.Description{
					Migration: mig.Migration,
					CanUndo:   false,
				},
				Status:    status,
				AppliedAt: appliedAt,
			},
			checksum: checksum,
		}
	}

	return result, order, nil
}

func (m *migratorImpl) migrate(ctx context.Context, mig migration.Migration, dir migration.Direction, path string) error {
	exists, err := m.storage.Exists(path)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrMigrationFileMissing, path)
	}

	script, err := m.storage.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	m.logger.Info("migrating", "migration", mig.String(), "direction", dir.String(), "file", path)

	if err := m.driver.Migrate(ctx, mig, dir, script); err != nil {
		return fmt.Errorf("failed to migrate %s %s: %w", mig, dir, err)
	}

	return nil
}

// isModified compares the log checksum to the up file on disk. A file that
// was never generated is not considered modified.
func (m *migratorImpl) isModified(tables []schema.Table, mig migration.Migration, checksum string) (bool, error) {
	path := m.upFilePath(tables, mig)
	if path == "" {
		return false, nil
	}

	exists, err := m.storage.Exists(path)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", path, err)
	}
	if !exists {
		return false, nil
	}

	script, err := m.storage.Read(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return migration.Checksum(script) != checksum, nil
}

func (m *migratorImpl) upFilePath(tables []schema.Table, mig migration.Migration) string {
	for i := range tables {
		table := &tables[i]
		if table.ClassName != mig.Schema {
			continue
		}

		if mig.Version == schema.RootVersion {
			return m.generator.MigrationFilePath(table)
		}
		if version, ok := table.Version(mig.Version); ok {
			return m.generator.VersionFilePath(table, version)
		}
	}
	return ""
}

func describe(table *schema.Table) []migration.Description {
	result := make([]migration.Description, 0, len(table.Versions)+1)
	result = append(result, migration.Description{
		Migration: migration.Migration{Schema: table.ClassName, Version: schema.RootVersion},
		CanUndo:   false,
	})
	for _, version := range table.Versions {
		result = append(result, migration.Description{
			Migration: migration.Migration{Schema: table.ClassName, Version: version.Name},
			CanUndo:   true,
		})
	}
	return result
}
