package schema

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidTable   = errors.New("invalid table definition")
	ErrInvalidColumn  = errors.New("invalid column definition")
	ErrInvalidVersion = errors.New("invalid version definition")
	ErrUnknownColumn  = errors.New("change references an unknown column")
	ErrRenameTarget   = errors.New("rename has no target column name")
)

// Validate checks the table definition and its whole version history. All
// problems found are returned joined together.
func (t *Table) Validate() error {
	var errs []error

	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, fmt.Errorf("%w: table name is empty", ErrInvalidTable))
	}
	if strings.TrimSpace(t.ClassName) == "" {
		errs = append(errs, fmt.Errorf("%w: class name of table \"%s\" is empty", ErrInvalidTable, t.Name))
	} else if !isPathElement(t.ClassName) {
		errs = append(errs, fmt.Errorf("%w: class name \"%s\" is not a single directory name", ErrInvalidTable, t.ClassName))
	}
	if len(t.Columns) == 0 {
		errs = append(errs, fmt.Errorf("%w: table \"%s\" has no columns", ErrInvalidTable, t.Name))
	}

	known := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		errs = append(errs, checkColumn(t.Name, "", col, known)...)
		known[col.Name] = true
	}

	names := make(map[string]bool, len(t.Versions))
	files := make(map[string]bool, len(t.Versions))

	for _, ver := range t.Versions {
		errs = append(errs, checkVersionIdentity(t.Name, ver, names, files)...)
		names[ver.Name] = true
		files[ver.FileName()] = true

		for _, col := range ver.Columns {
			errs = append(errs, checkColumn(t.Name, ver.Name, col, known)...)
			known[col.Name] = true
		}

		for _, change := range ver.Changes {
			errs = append(errs, applyChange(t.Name, ver.Name, change, known)...)
		}
	}

	return errors.Join(errs...)
}

// isPathElement reports whether name can be used as a directory under the
// sql directory without escaping it.
func isPathElement(name string) bool {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name && filepath.IsLocal(name)
}

func checkColumn(table, version string, col Column, known map[string]bool) []error {
	where := fmt.Sprintf("table \"%s\"", table)
	if version != "" {
		where += fmt.Sprintf(", version \"%s\"", version)
	}

	var errs []error
	switch {
	case strings.TrimSpace(col.Name) == "":
		errs = append(errs, fmt.Errorf("%w: %s: column name is empty", ErrInvalidColumn, where))
	case known[col.Name]:
		errs = append(errs, fmt.Errorf("%w: %s: column \"%s\" already exists", ErrInvalidColumn, where, col.Name))
	}
	if strings.TrimSpace(col.Type) == "" {
		errs = append(errs, fmt.Errorf("%w: %s: column \"%s\" has no type", ErrInvalidColumn, where, col.Name))
	}

	return errs
}

func checkVersionIdentity(table string, ver Version, names, files map[string]bool) []error {
	var errs []error

	switch {
	case strings.TrimSpace(ver.Name) == "":
		errs = append(errs, fmt.Errorf("%w: table \"%s\": version name is empty", ErrInvalidVersion, table))
	case ver.Name == RootVersion:
		errs = append(errs, fmt.Errorf("%w: table \"%s\": version name \"%s\" is reserved", ErrInvalidVersion, table, RootVersion))
	case names[ver.Name]:
		errs = append(errs, fmt.Errorf("%w: table \"%s\": duplicate version \"%s\"", ErrInvalidVersion, table, ver.Name))
	}

	file := ver.FileName()
	switch {
	case strings.ContainsAny(file, `/\`):
		errs = append(errs, fmt.Errorf("%w: table \"%s\": version file name \"%s\" contains a path separator", ErrInvalidVersion, table, file))
	case file != "" && files[file]:
		errs = append(errs, fmt.Errorf("%w: table \"%s\": duplicate version file name \"%s\"", ErrInvalidVersion, table, file))
	}

	return errs
}

// applyChange validates a change against the columns known at that point of
// the history and updates the known set accordingly.
func applyChange(table, version string, change ColumnChange, known map[string]bool) []error {
	name := change.Existing().Name
	if !known[name] {
		return []error{fmt.Errorf(
			"%w: table \"%s\", version \"%s\": %s of column \"%s\"",
			ErrUnknownColumn, table, version, change.Kind(), name,
		)}
	}

	switch c := change.(type) {
	case DropColumn:
		delete(known, name)

	case RenameColumn:
		if strings.TrimSpace(c.To) == "" {
			return []error{fmt.Errorf(
				"%w: table \"%s\", version \"%s\": column \"%s\"",
				ErrRenameTarget, table, version, name,
			)}
		}
		if known[c.To] {
			return []error{fmt.Errorf(
				"%w: table \"%s\", version \"%s\": rename target \"%s\" already exists",
				ErrInvalidColumn, table, version, c.To,
			)}
		}
		delete(known, name)
		known[c.To] = true

	case AlterColumn:
		if c.Replacement != nil && c.Replacement.Name != "" && c.Replacement.Name != name {
			delete(known, name)
			known[c.Replacement.Name] = true
		}
	}

	return nil
}
