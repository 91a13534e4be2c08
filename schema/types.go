// Package schema describes database tables and their versioned evolution.
package schema

// RootVersion is the key reserved for a table's root migration file.
const RootVersion = "root"

// ---

type Column struct {
	Name    string
	Type    string
	Comment string

	// Constraints is emitted verbatim after the type, e.g. "NOT NULL DEFAULT 0".
	Constraints string
}

// ---

type Version struct {
	Name string
	File string // defaults to Name
	Info string

	Columns []Column
	Changes []ColumnChange
}

// FileName returns the name used in the version's migration file names.
func (v Version) FileName() string {
	if v.File != "" {
		return v.File
	}
	return v.Name
}

// ---

type Table struct {
	Name      string
	ClassName string
	Comment   string

	Columns  []Column
	Versions []Version
}

// Version looks a version up by name.
func (t *Table) Version(name string) (Version, bool) {
	for _, v := range t.Versions {
		if v.Name == name {
			return v, true
		}
	}
	return Version{}, false
}
