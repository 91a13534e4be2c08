// Package files reads table definitions from *.schema.yaml files.
//
// A definitions file maps schema class names to tables:
//
//	Observation:
//	  name: observation
//	  comment: Field observations
//	  columns:
//	    - { name: observation_id, type: SERIAL, constraints: PRIMARY KEY, comment: Primary key }
//	  versions:
//	    - name: v1
//	      info: Adds size
//	      columns:
//	        - { name: size, type: INT, comment: size in mm }
//	      changes:
//	        - { type: rename, column: date, to: observed_at }
//
// Changes refer to existing columns by name. The name is resolved against the
// base columns and the columns added or renamed by earlier versions.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/root-talis/sakusei/schema"
	"github.com/root-talis/sakusei/source"
)

var (
	ErrDefinitionsDirectoryIsNotADirectory = errors.New("definitions directory is not a directory")
)

var definitionSuffixes = []string{".schema.yaml", ".schema.yml"} // nolint:gochecknoglobals

type filesSource struct {
	fsys fs.FS
	dir  string
}

func NewFilesSource(fsys fs.FS, dir string) (source.Source, error) {
	stat, err := fs.Stat(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat definitions directory: %w", err)
	}

	if !stat.IsDir() {
		return nil, ErrDefinitionsDirectoryIsNotADirectory
	}

	return &filesSource{
		fsys: fsys,
		dir:  dir,
	}, nil
}

func (src *filesSource) LoadTables() ([]schema.Table, error) {
	entries, err := fs.ReadDir(src.fsys, src.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents of definitions directory: %w", err)
	}

	result := make([]schema.Table, 0)
	definedIn := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !entry.Type().IsRegular() || !IsDefinitionFile(entry.Name()) {
			continue
		}

		filePath := path.Join(src.dir, entry.Name())
		tables, err := src.loadFile(filePath)
		if err != nil {
			return nil, err
		}

		for _, table := range tables {
			if previous, exists := definedIn[table.ClassName]; exists {
				return nil, fmt.Errorf("%w: %s is defined in %s and %s", source.ErrSchemaDuplicated, table.ClassName, previous, filePath)
			}
			definedIn[table.ClassName] = filePath

			result = append(result, table)
		}
	}

	return result, nil
}

func (src *filesSource) loadFile(filePath string) ([]schema.Table, error) {
	content, err := fs.ReadFile(src.fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	var doc map[string]tableDoc
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", source.ErrInvalidDefinitions, filePath, err)
	}

	classNames := make([]string, 0, len(doc))
	for className := range doc {
		classNames = append(classNames, className)
	}
	sort.Strings(classNames)

	tables := make([]schema.Table, 0, len(doc))
	for _, className := range classNames {
		table, err := doc[className].toTable(className)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filePath, err)
		}

		if err := table.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", source.ErrInvalidDefinitions, filePath, err)
		}

		tables = append(tables, table)
	}

	return tables, nil
}

// IsDefinitionFile reports whether a file name is picked up by the source.
func IsDefinitionFile(name string) bool {
	for _, suffix := range definitionSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return true
		}
	}
	return false
}
