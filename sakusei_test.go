package sakusei_test

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/sakusei"
	"github.com/root-talis/sakusei/render"
	"github.com/root-talis/sakusei/schema"
	"github.com/root-talis/sakusei/storage"
	"github.com/root-talis/sakusei/storage/files"
)

// -- testing double for storage ---------

type countingStorage struct {
	storage.Storage
	writes  int
	removes int
}

func (s *countingStorage) Write(path string, content string) error {
	s.writes++
	return s.Storage.Write(path, content)
}

func (s *countingStorage) Remove(path string) error {
	s.removes++
	return s.Storage.Remove(path)
}

// -- helpers -----------------------------

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGenerator(sqlDir string) (*sakusei.Generator, *countingStorage) {
	st := &countingStorage{Storage: files.NewFilesStorage()}
	return sakusei.New(sqlDir, st, sakusei.WithLogger(quietLogger())), st
}

func widgetTable() *schema.Table {
	return &schema.Table{
		Name:      "widget",
		ClassName: "Widget",
		Columns: []schema.Column{
			{Name: "widget_id", Type: "SERIAL", Constraints: "PRIMARY KEY", Comment: "Primary key"},
		},
		Versions: []schema.Version{
			{
				Name:    "v1",
				Columns: []schema.Column{{Name: "size", Type: "int", Comment: "size in mm"}},
			},
		},
	}
}

func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()

	result := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			result[rel+string(filepath.Separator)] = ""
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		result[rel] = string(content)

		return nil
	})
	require.NoError(t, err)

	return result
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(content)
}

//
// -- Tests for Generator.CreateMigrationFiles() ------------
//

func TestCreateMigrationFiles(t *testing.T) {
	t.Parallel()
	t.Logf("Should create all files on first run and leave them alone on the second.")

	sqlDir := t.TempDir()
	gen, st := newGenerator(sqlDir)
	table := widgetTable()

	report, err := gen.CreateMigrationFiles(table, false)
	require.NoError(t, err)

	rootPath := filepath.Join(sqlDir, "Widget", "Widget.sql")
	upPath := filepath.Join(sqlDir, "Widget", "Widget-v1.up.sql")

	assert.Equal(t, sakusei.Report{
		RootVersion: sakusei.FileReport{
			MigrationFilePath: rootPath,
			CreateNew:         true,
			Comment:           "Create a new migration file",
		},
		Versions: map[string]sakusei.FileReport{
			"v1": {
				MigrationFilePath: upPath,
				CreateNew:         true,
				Comment:           "Create new migration file for content",
			},
		},
		RequireDataModelUpdate: true,
	}, *report)
	assert.Equal(t, 2, st.writes)

	up := readFile(t, upPath)
	assert.Contains(t, up, "ALTER TABLE widget ADD COLUMN size int;")
	assert.Contains(t, up, "COMMENT ON COLUMN widget.size IS 'size in mm';")
	assert.Contains(t, readFile(t, rootPath), "CREATE TABLE widget (")

	st.writes = 0
	report, err = gen.CreateMigrationFiles(table, false)
	require.NoError(t, err)

	assert.False(t, report.RequireDataModelUpdate)
	assert.False(t, report.RootVersion.UpdateExisting)
	assert.False(t, report.RootVersion.CreateNew)
	assert.Equal(t, "Current Migration file is same as last one", report.RootVersion.Comment)
	assert.False(t, report.Versions["v1"].UpdateExisting)
	assert.False(t, report.Versions["v1"].CreateNew)
	assert.Equal(t, "Current migration file is same as last one", report.Versions["v1"].Comment)
	assert.Zero(t, st.writes)
	assert.Zero(t, st.removes)
}

func TestCreateMigrationFilesDetectsChanges(t *testing.T) {
	t.Parallel()

	sqlDir := t.TempDir()
	gen, st := newGenerator(sqlDir)
	table := widgetTable()

	_, err := gen.CreateMigrationFiles(table, false)
	require.NoError(t, err)

	upPath := filepath.Join(sqlDir, "Widget", "Widget-v1.up.sql")
	require.NoError(t, os.WriteFile(upPath, []byte("-- stale content\n"), 0o600))
	st.writes = 0

	report, err := gen.CreateMigrationFiles(table, false)
	require.NoError(t, err)

	assert.True(t, report.RequireDataModelUpdate)
	assert.False(t, report.RootVersion.Changed())
	assert.Equal(t, sakusei.FileReport{
		MigrationFilePath: upPath,
		UpdateExisting:    true,
		Comment:           "Update existing migration file",
	}, report.Versions["v1"])
	assert.Equal(t, 1, st.removes)
	assert.Equal(t, 1, st.writes)
	assert.Equal(t, gen.VersionMigrationInfo(table, table.Versions[0]).Content, readFile(t, upPath))
}

func TestCreateMigrationFilesUpdatesRoot(t *testing.T) {
	t.Parallel()

	sqlDir := t.TempDir()
	gen, _ := newGenerator(sqlDir)
	table := widgetTable()

	_, err := gen.CreateMigrationFiles(table, false)
	require.NoError(t, err)

	table.Columns = append(table.Columns, schema.Column{Name: "label", Type: "TEXT", Comment: "Label"})

	report, err := gen.CreateMigrationFiles(table, false)
	require.NoError(t, err)

	assert.True(t, report.RequireDataModelUpdate)
	assert.True(t, report.RootVersion.UpdateExisting)
	assert.Equal(t, "Updating Root Migration file for Schema", report.RootVersion.Comment)
	assert.False(t, report.Versions["v1"].Changed())
	assert.Contains(t, readFile(t, report.RootVersion.MigrationFilePath), "label TEXT")
}

func TestCreateMigrationFilesDryRun(t *testing.T) {
	t.Parallel()
	t.Logf("Should report like a live run without touching the filesystem.")

	t.Run("empty directory", func(t *testing.T) {
		t.Parallel()

		sqlDir := t.TempDir()
		gen, st := newGenerator(sqlDir)
		before := snapshot(t, sqlDir)

		dry, err := gen.CreateMigrationFiles(widgetTable(), true)
		require.NoError(t, err)

		assert.Equal(t, before, snapshot(t, sqlDir))
		assert.Zero(t, st.writes)

		live, err := gen.CreateMigrationFiles(widgetTable(), false)
		require.NoError(t, err)
		assert.Equal(t, live, dry)
	})

	t.Run("stale files", func(t *testing.T) {
		t.Parallel()

		sqlDir := t.TempDir()
		gen, st := newGenerator(sqlDir)
		table := widgetTable()

		_, err := gen.CreateMigrationFiles(table, false)
		require.NoError(t, err)

		upPath := filepath.Join(sqlDir, "Widget", "Widget-v1.up.sql")
		require.NoError(t, os.WriteFile(upPath, []byte("-- stale content\n"), 0o600))

		before := snapshot(t, sqlDir)
		st.writes, st.removes = 0, 0

		report, err := gen.CreateMigrationFiles(table, true)
		require.NoError(t, err)

		assert.True(t, report.RequireDataModelUpdate)
		assert.True(t, report.Versions["v1"].UpdateExisting)
		assert.Equal(t, before, snapshot(t, sqlDir))
		assert.Zero(t, st.writes)
		assert.Zero(t, st.removes)
	})
}

func TestCreateMigrationFilesFailsWithoutSQLDir(t *testing.T) {
	t.Parallel()

	gen, _ := newGenerator(filepath.Join(t.TempDir(), "missing"))

	_, err := gen.CreateMigrationFiles(widgetTable(), false)
	assert.Error(t, err)

	_, err = gen.CreateRevertMigrationFiles(widgetTable(), false)
	assert.Error(t, err)
}

func TestDryRunFailsLikeLiveRun(t *testing.T) {
	t.Parallel()

	t.Logf("Should fail a dry run when the sql directory is missing")
	{
		gen, _ := newGenerator(filepath.Join(t.TempDir(), "missing"))

		_, err := gen.CreateMigrationFiles(widgetTable(), true)
		assert.ErrorIs(t, err, storage.ErrNotADirectory)

		_, err = gen.CreateRevertMigrationFiles(widgetTable(), true)
		assert.ErrorIs(t, err, storage.ErrNotADirectory)
	}

	t.Logf("Should fail a dry run when the schema directory is a file")
	{
		sqlDir := t.TempDir()
		gen, _ := newGenerator(sqlDir)
		require.NoError(t, os.WriteFile(filepath.Join(sqlDir, "Widget"), nil, 0o600))

		_, err := gen.CreateMigrationFiles(widgetTable(), true)
		assert.ErrorIs(t, err, storage.ErrNotADirectory)

		_, err = gen.CreateMigrationFiles(widgetTable(), false)
		assert.ErrorIs(t, err, storage.ErrNotADirectory)
	}

	t.Logf("Should report new files on a dry run over an empty sql directory")
	{
		gen, _ := newGenerator(t.TempDir())

		report, err := gen.CreateMigrationFiles(widgetTable(), true)
		require.NoError(t, err)
		assert.True(t, report.RootVersion.CreateNew)
	}
}

func TestCreateMigrationFilesWithRenamePlaceholder(t *testing.T) {
	t.Parallel()

	sqlDir := t.TempDir()
	gen, _ := newGenerator(sqlDir)
	table := widgetTable()
	table.Versions = append(table.Versions, schema.Version{
		Name:    "v2",
		Changes: []schema.ColumnChange{schema.RenameColumn{Column: schema.Column{Name: "size"}}},
	})

	report, err := gen.CreateMigrationFiles(table, false)
	require.NoError(t, err)

	assert.Contains(t, readFile(t, report.Versions["v2"].MigrationFilePath), "ALTER TABLE widget RENAME size TO NA;")
}

func TestWithRenderer(t *testing.T) {
	t.Parallel()

	gen := sakusei.New(t.TempDir(), files.NewFilesStorage(),
		sakusei.WithLogger(quietLogger()),
		sakusei.WithRenderer(render.New(render.MySQL{})),
	)
	table := widgetTable()

	info := gen.VersionMigrationInfo(table, table.Versions[0])
	assert.Contains(t, info.Content, "ALTER TABLE widget MODIFY COLUMN size int COMMENT 'size in mm';")
	assert.Equal(t, "mysql", gen.Renderer().Dialect().Name())
}

//
// -- Tests for Generator.CreateRevertMigrationFiles() ------------
//

func TestCreateRevertMigrationFiles(t *testing.T) {
	t.Parallel()
	t.Logf("Should rewrite revert files on every call.")

	sqlDir := t.TempDir()
	gen, st := newGenerator(sqlDir)
	table := widgetTable()

	downPath := filepath.Join(sqlDir, "Widget", "Widget-v1.down.sql")

	report, err := gen.CreateRevertMigrationFiles(table, false)
	require.NoError(t, err)
	assert.Equal(t, sakusei.RevertReport{
		Versions: map[string]sakusei.RevertFileReport{
			"v1": {MigrationFilePath: downPath, Comment: "Revert migration file"},
		},
	}, *report)
	assert.Equal(t, 1, st.writes)

	_, err = gen.CreateRevertMigrationFiles(table, false)
	require.NoError(t, err)
	assert.Equal(t, 2, st.writes)

	assert.Contains(t, readFile(t, downPath), "ALTER TABLE widget DROP COLUMN size;")
}

func TestCreateRevertMigrationFilesDryRun(t *testing.T) {
	t.Parallel()

	sqlDir := t.TempDir()
	gen, st := newGenerator(sqlDir)
	before := snapshot(t, sqlDir)

	report, err := gen.CreateRevertMigrationFiles(widgetTable(), true)
	require.NoError(t, err)

	assert.Len(t, report.Versions, 1)
	assert.Zero(t, st.writes)
	assert.Equal(t, before, snapshot(t, sqlDir))
}

//
// -- Tests for paths and listings ------------
//

func TestPathConvention(t *testing.T) {
	t.Parallel()

	gen := sakusei.New("sql", files.NewFilesStorage(), sakusei.WithLogger(quietLogger()))
	table := &schema.Table{Name: "observation", ClassName: "Observation"}
	version := schema.Version{Name: "initial", File: "v1"}

	assert.Equal(t, filepath.Join("sql", "Observation", "Observation.sql"), gen.MigrationFilePath(table))
	assert.Equal(t, filepath.Join("sql", "Observation", "Observation-v1.up.sql"), gen.VersionFilePath(table, version))
	assert.Equal(t, filepath.Join("sql", "Observation", "Observation-v1.down.sql"), gen.VersionRevertFilePath(table, version))

	info := gen.VersionRevertMigrationInfo(table, version)
	assert.Equal(t, "Observation-v1.down.sql", info.FileName)
}

func TestAllSQLFiles(t *testing.T) {
	t.Parallel()

	gen := sakusei.New("sql", files.NewFilesStorage(), sakusei.WithLogger(quietLogger()))
	table := widgetTable()
	table.Versions = append(table.Versions, schema.Version{Name: "v2", File: "20191022_label"})

	sqlFiles := gen.AllSQLFiles(table)

	assert.Equal(t, sakusei.SQLFiles{
		Migrations: map[string]string{
			"root": "Widget",
			"v1":   "Widget-v1.up.sql",
			"v2":   "Widget-20191022_label.up.sql",
		},
		RevertMigrations: map[string]string{
			"v1": "Widget-v1.down.sql",
			"v2": "Widget-20191022_label.down.sql",
		},
		AllFiles: []string{
			filepath.Join("sql", "Widget", "Widget.sql"),
			filepath.Join("sql", "Widget", "Widget-v1.up.sql"),
			filepath.Join("sql", "Widget", "Widget-v1.down.sql"),
			filepath.Join("sql", "Widget", "Widget-20191022_label.up.sql"),
			filepath.Join("sql", "Widget", "Widget-20191022_label.down.sql"),
		},
	}, sqlFiles)
	assert.Equal(t, sqlFiles.Migrations, gen.MigrationFiles(table))
	assert.Equal(t, sqlFiles.RevertMigrations, gen.RevertMigrationFiles(table))
}

func TestRemoveAllMigrationFiles(t *testing.T) {
	t.Parallel()

	sqlDir := t.TempDir()
	gen, _ := newGenerator(sqlDir)
	table := widgetTable()

	_, err := gen.CreateMigrationFiles(table, false)
	require.NoError(t, err)

	require.NoError(t, gen.RemoveAllMigrationFiles(table, true))
	assert.DirExists(t, gen.SchemaDir(table))

	require.NoError(t, gen.RemoveAllMigrationFiles(table, false))
	assert.NoDirExists(t, gen.SchemaDir(table))
}

func TestRemoveAllMigrationFilesStaysInsideSQLDir(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	sqlDir := filepath.Join(parent, "sql")
	require.NoError(t, os.Mkdir(sqlDir, 0o755))
	precious := filepath.Join(parent, "precious.txt")
	require.NoError(t, os.WriteFile(precious, []byte("keep"), 0o600))

	gen, _ := newGenerator(sqlDir)

	for _, className := range []string{"..", ".", "", "a/.."} {
		table := widgetTable()
		table.ClassName = className

		err := gen.RemoveAllMigrationFiles(table, false)
		assert.ErrorIs(t, err, sakusei.ErrSchemaDirOutsideSQLDir, "class name %q", className)
	}

	assert.DirExists(t, sqlDir)
	assert.FileExists(t, precious)
}
