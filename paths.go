package sakusei

import (
	"path/filepath"

	"github.com/root-talis/sakusei/schema"
)

const (
	rootFileSuffix   = ".sql"
	upFileSuffix     = ".up.sql"
	revertFileSuffix = ".down.sql"
)

// SchemaDir is the directory holding every file of the table.
func (g *Generator) SchemaDir(table *schema.Table) string {
	return filepath.Join(g.sqlDir, table.ClassName)
}

func (g *Generator) MigrationFileName(table *schema.Table) string {
	return table.ClassName + rootFileSuffix
}

func (g *Generator) MigrationFilePath(table *schema.Table) string {
	return filepath.Join(g.SchemaDir(table), g.MigrationFileName(table))
}

func (g *Generator) VersionFileName(table *schema.Table, version schema.Version) string {
	return table.ClassName + "-" + version.FileName() + upFileSuffix
}

func (g *Generator) VersionFilePath(table *schema.Table, version schema.Version) string {
	return filepath.Join(g.SchemaDir(table), g.VersionFileName(table, version))
}

func (g *Generator) VersionRevertFileName(table *schema.Table, version schema.Version) string {
	return table.ClassName + "-" + version.FileName() + revertFileSuffix
}

func (g *Generator) VersionRevertFilePath(table *schema.Table, version schema.Version) string {
	return filepath.Join(g.SchemaDir(table), g.VersionRevertFileName(table, version))
}

// AllSQLFiles lists the files generated for the table, whether they exist or not.
func (g *Generator) AllSQLFiles(table *schema.Table) SQLFiles {
	result := SQLFiles{
		Migrations:       make(map[string]string, len(table.Versions)+1),
		RevertMigrations: make(map[string]string, len(table.Versions)),
		AllFiles:         make([]string, 0, 2*len(table.Versions)+1),
	}

	result.AllFiles = append(result.AllFiles, g.MigrationFilePath(table))
	result.Migrations[schema.RootVersion] = table.ClassName

	for _, version := range table.Versions {
		result.Migrations[version.Name] = g.VersionFileName(table, version)
		result.AllFiles = append(result.AllFiles, g.VersionFilePath(table, version))

		result.RevertMigrations[version.Name] = g.VersionRevertFileName(table, version)
		result.AllFiles = append(result.AllFiles, g.VersionRevertFilePath(table, version))
	}

	return result
}

func (g *Generator) MigrationFiles(table *schema.Table) map[string]string {
	return g.AllSQLFiles(table).Migrations
}

func (g *Generator) RevertMigrationFiles(table *schema.Table) map[string]string {
	return g.AllSQLFiles(table).RevertMigrations
}
