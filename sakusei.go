// Package sakusei generates versioned SQL migration files from table schema
// definitions and keeps them in sync with the files already on disk.
//
// For every table the generator maintains a root migration file holding the
// table's base definition and, per version, a forward (.up.sql) and a revert
// (.down.sql) file:
//
//	<sqlDir>/<ClassName>/<ClassName>.sql
//	<sqlDir>/<ClassName>/<ClassName>-<version>.up.sql
//	<sqlDir>/<ClassName>/<ClassName>-<version>.down.sql
//
// A Generator assumes exclusive access to a table's directory while it runs.
// Different tables may be generated concurrently.
package sakusei

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/root-talis/sakusei/render"
	"github.com/root-talis/sakusei/schema"
	"github.com/root-talis/sakusei/storage"
)

var ErrSchemaDirOutsideSQLDir = errors.New("schema directory is not a direct child of the sql directory")

type Generator struct {
	sqlDir   string
	storage  storage.Storage
	renderer render.Renderer
	logger   *slog.Logger
}

type Option func(*Generator)

// WithRenderer replaces the default PostgreSQL renderer.
func WithRenderer(r render.Renderer) Option {
	return func(g *Generator) { g.renderer = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// ---

func New(sqlDir string, st storage.Storage, opts ...Option) *Generator {
	g := &Generator{
		sqlDir:   sqlDir,
		storage:  st,
		renderer: render.New(render.Postgres{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) SQLDir() string {
	return g.sqlDir
}

func (g *Generator) Renderer() render.Renderer {
	return g.renderer
}

// ---

func (g *Generator) RootMigrationInfo(table *schema.Table) FileInfo {
	return FileInfo{
		FileName: g.MigrationFileName(table),
		FilePath: g.MigrationFilePath(table),
		Content:  g.renderer.Table(*table),
	}
}

func (g *Generator) VersionMigrationInfo(table *schema.Table, version schema.Version) FileInfo {
	return FileInfo{
		FileName: g.VersionFileName(table, version),
		FilePath: g.VersionFilePath(table, version),
		Content:  g.renderer.VersionMigration(version, table.Name),
	}
}

func (g *Generator) VersionRevertMigrationInfo(table *schema.Table, version schema.Version) FileInfo {
	return FileInfo{
		FileName: g.VersionRevertFileName(table, version),
		FilePath: g.VersionRevertFilePath(table, version),
		Content:  g.renderer.VersionRevert(version, table.Name),
	}
}

// ---

// CreateMigrationFiles writes the root and per-version forward files of the
// table whose content differs from what is on disk. With dryRun set nothing
// is written, but the report is the same as for a live run.
func (g *Generator) CreateMigrationFiles(table *schema.Table, dryRun bool) (*Report, error) {
	logger := g.logger.With("schema", table.ClassName, "dryRun", dryRun)

	if err := g.ensureSchemaDir(table, dryRun); err != nil {
		return nil, err
	}

	report := Report{
		Versions: make(map[string]FileReport, len(table.Versions)),
	}

	root, err := g.sync(g.RootMigrationInfo(table), dryRun, rootComments)
	if err != nil {
		return nil, fmt.Errorf("failed to sync root migration of %s: %w", table.ClassName, err)
	}
	report.RootVersion = root
	report.RequireDataModelUpdate = root.Changed()
	logger.Debug("root migration synced", "path", root.MigrationFilePath, "comment", root.Comment)

	for _, version := range table.Versions {
		g.warnPlaceholders(logger, version)

		entry, err := g.sync(g.VersionMigrationInfo(table, version), dryRun, versionComments)
		if err != nil {
			return nil, fmt.Errorf("failed to sync migration %s of %s: %w", version.Name, table.ClassName, err)
		}

		report.Versions[version.Name] = entry
		if entry.Changed() {
			report.RequireDataModelUpdate = true
		}
		logger.Debug("version migration synced", "version", version.Name, "path", entry.MigrationFilePath, "comment", entry.Comment)
	}

	logger.Info("migration files generated",
		"versions", len(table.Versions),
		"requireDataModelUpdate", report.RequireDataModelUpdate,
	)

	return &report, nil
}

// CreateRevertMigrationFiles writes every version's revert file, whether its
// content changed or not.
func (g *Generator) CreateRevertMigrationFiles(table *schema.Table, dryRun bool) (*RevertReport, error) {
	logger := g.logger.With("schema", table.ClassName, "dryRun", dryRun)

	if err := g.ensureSchemaDir(table, dryRun); err != nil {
		return nil, err
	}

	report := RevertReport{
		Versions: make(map[string]RevertFileReport, len(table.Versions)),
	}

	for _, version := range table.Versions {
		info := g.VersionRevertMigrationInfo(table, version)

		if !dryRun {
			if err := g.storage.Write(info.FilePath, info.Content); err != nil {
				return nil, fmt.Errorf("failed to write revert migration %s of %s: %w", version.Name, table.ClassName, err)
			}
		}

		report.Versions[version.Name] = RevertFileReport{
			MigrationFilePath: info.FilePath,
			Comment:           revertComment,
		}
	}

	logger.Info("revert migration files generated", "versions", len(table.Versions))

	return &report, nil
}

// RemoveAllMigrationFiles deletes the table's directory with every file in it.
func (g *Generator) RemoveAllMigrationFiles(table *schema.Table, dryRun bool) error {
	dir := g.SchemaDir(table)

	if filepath.Dir(dir) != filepath.Clean(g.sqlDir) || filepath.Base(dir) != table.ClassName {
		return fmt.Errorf("%w: %s", ErrSchemaDirOutsideSQLDir, dir)
	}

	if !dryRun {
		if err := g.storage.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove migration files of %s: %w", table.ClassName, err)
		}
	}

	g.logger.Info("migration files removed", "schema", table.ClassName, "dir", dir, "dryRun", dryRun)

	return nil
}

// ---

// ensureSchemaDir creates the table's directory. A dry run only checks that
// creating it would succeed.
func (g *Generator) ensureSchemaDir(table *schema.Table, dryRun bool) error {
	dir := g.SchemaDir(table)

	if !dryRun {
		if err := g.storage.MakeDir(dir); err != nil {
			return fmt.Errorf("failed to prepare directory of %s: %w", table.ClassName, err)
		}
		return nil
	}

	exists, err := g.storage.DirExists(dir)
	if err != nil {
		return fmt.Errorf("failed to prepare directory of %s: %w", table.ClassName, err)
	}
	if exists {
		return nil
	}

	parentExists, err := g.storage.DirExists(filepath.Dir(dir))
	if err != nil {
		return fmt.Errorf("failed to prepare directory of %s: %w", table.ClassName, err)
	}
	if !parentExists {
		return fmt.Errorf("failed to prepare directory of %s: %w: %s does not exist",
			table.ClassName, storage.ErrNotADirectory, filepath.Dir(dir))
	}

	return nil
}

// sync brings one file in line with its rendered content.
func (g *Generator) sync(info FileInfo, dryRun bool, comments syncComments) (FileReport, error) {
	exists, err := g.storage.Exists(info.FilePath)
	if err != nil {
		return FileReport{}, err
	}

	if !exists {
		if !dryRun {
			if err := g.storage.Write(info.FilePath, info.Content); err != nil {
				return FileReport{}, err
			}
		}

		return FileReport{
			MigrationFilePath: info.FilePath,
			CreateNew:         true,
			Comment:           comments.created,
		}, nil
	}

	existing, err := g.storage.Read(info.FilePath)
	if err != nil {
		return FileReport{}, err
	}

	if existing == info.Content {
		return FileReport{
			MigrationFilePath: info.FilePath,
			UpdateExisting:    false,
			Comment:           comments.unchanged,
		}, nil
	}

	if !dryRun {
		// the old file goes first so nothing of it survives the rewrite
		if err := g.storage.Remove(info.FilePath); err != nil {
			return FileReport{}, err
		}
		if err := g.storage.Write(info.FilePath, info.Content); err != nil {
			return FileReport{}, err
		}
	}

	return FileReport{
		MigrationFilePath: info.FilePath,
		UpdateExisting:    true,
		Comment:           comments.updated,
	}, nil
}

func (g *Generator) warnPlaceholders(logger *slog.Logger, version schema.Version) {
	for _, change := range version.Changes {
		if rename, ok := change.(schema.RenameColumn); ok && rename.To == "" {
			logger.Warn("rename has no target, rendering placeholder",
				"version", version.Name,
				"column", rename.Column.Name,
				"placeholder", render.RenamePlaceholder,
			)
		}
	}
}
