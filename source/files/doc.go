package files

import (
	"fmt"
	"strings"

	"github.com/root-talis/sakusei/schema"
	"github.com/root-talis/sakusei/source"
)

type columnDoc struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Comment     string `yaml:"comment"`
	Constraints string `yaml:"constraints"`
}

type changeDoc struct {
	Type        string     `yaml:"type"`
	Column      string     `yaml:"column"`
	To          string     `yaml:"to"`
	Replacement *columnDoc `yaml:"replacement"`
	SQL         string     `yaml:"sql"`
	RevertSQL   string     `yaml:"revertSql"`
}

type versionDoc struct {
	Name    string      `yaml:"name"`
	File    string      `yaml:"file"`
	Info    string      `yaml:"info"`
	Columns []columnDoc `yaml:"columns"`
	Changes []changeDoc `yaml:"changes"`
}

type tableDoc struct {
	Name     string       `yaml:"name"`
	Comment  string       `yaml:"comment"`
	Columns  []columnDoc  `yaml:"columns"`
	Versions []versionDoc `yaml:"versions"`
}

// ---

func (c columnDoc) toColumn() schema.Column {
	return schema.Column{
		Name:        c.Name,
		Type:        c.Type,
		Comment:     c.Comment,
		Constraints: c.Constraints,
	}
}

func toColumns(docs []columnDoc) []schema.Column {
	cols := make([]schema.Column, 0, len(docs))
	for _, doc := range docs {
		cols = append(cols, doc.toColumn())
	}
	return cols
}

func (t tableDoc) toTable(className string) (schema.Table, error) {
	table := schema.Table{
		Name:      t.Name,
		ClassName: className,
		Comment:   t.Comment,
		Columns:   toColumns(t.Columns),
		Versions:  make([]schema.Version, 0, len(t.Versions)),
	}

	// columns as they are at the current point of the history
	current := make(map[string]schema.Column, len(table.Columns))
	for _, col := range table.Columns {
		current[col.Name] = col
	}

	for _, verDoc := range t.Versions {
		version := schema.Version{
			Name:    verDoc.Name,
			File:    verDoc.File,
			Info:    verDoc.Info,
			Columns: toColumns(verDoc.Columns),
			Changes: make([]schema.ColumnChange, 0, len(verDoc.Changes)),
		}

		for _, col := range version.Columns {
			current[col.Name] = col
		}

		for _, changeDoc := range verDoc.Changes {
			change, err := changeDoc.toChange(current)
			if err != nil {
				return schema.Table{}, fmt.Errorf("schema %s, version %s: %w", className, verDoc.Name, err)
			}
			version.Changes = append(version.Changes, change)
		}

		table.Versions = append(table.Versions, version)
	}

	return table, nil
}

// toChange resolves the referenced column and moves current past the change.
// Unknown columns are kept by name only and left to schema validation.
func (c changeDoc) toChange(current map[string]schema.Column) (schema.ColumnChange, error) {
	existing, ok := current[c.Column]
	if !ok {
		existing = schema.Column{Name: c.Column}
	}

	custom := schema.CustomSQL{
		Statement:       c.SQL,
		RevertStatement: c.RevertSQL,
	}

	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "drop":
		delete(current, c.Column)
		return schema.DropColumn{Column: existing, CustomSQL: custom}, nil

	case "rename":
		if ok && c.To != "" {
			delete(current, c.Column)
			renamed := existing
			renamed.Name = c.To
			current[c.To] = renamed
		}
		return schema.RenameColumn{Column: existing, To: c.To, CustomSQL: custom}, nil

	case "", "keychange", "key_change", "alter":
		change := schema.AlterColumn{Column: existing, CustomSQL: custom}
		if c.Replacement != nil {
			replacement := c.Replacement.toColumn()
			change.Replacement = &replacement
			if ok && replacement.Name != "" {
				delete(current, c.Column)
				current[replacement.Name] = replacement
			}
		}
		return change, nil

	default:
		return nil, fmt.Errorf("%w: \"%s\" on column %s", source.ErrUnknownChangeType, c.Type, c.Column)
	}
}
