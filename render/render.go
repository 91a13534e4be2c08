// Package render turns schema definitions into migration SQL text.
//
// Every section of the output is framed with "-- ## ... ## --" banners so the
// files stay readable and diff friendly. Rendering is pure: equal inputs give
// byte-identical output, which is what lets callers compare rendered text with
// files already on disk.
package render

import (
	"fmt"
	"strings"

	"github.com/root-talis/sakusei/schema"
)

// RenamePlaceholder is rendered in place of a missing rename target.
const RenamePlaceholder = "NA"

const sectionEnd = "-- ## --\n"

type Renderer interface {
	Dialect() Dialect

	Table(table schema.Table) string
	ColumnAdd(col schema.Column, tableName string) string
	ColumnChange(change schema.ColumnChange, tableName string) string
	ColumnChangeRevert(change schema.ColumnChange) string
	VersionMigration(version schema.Version, tableName string) string
	VersionRevert(version schema.Version, tableName string) string
}

// ---

type sqlRenderer struct {
	dialect Dialect
}

func New(dialect Dialect) Renderer {
	return &sqlRenderer{dialect: dialect}
}

func (r *sqlRenderer) Dialect() Dialect {
	return r.dialect
}

func (r *sqlRenderer) Table(table schema.Table) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "-- ## Creating table: %s\n", table.Name)
	fmt.Fprintf(&sb, "-- ## Class: %s\n", table.ClassName)
	fmt.Fprintf(&sb, "-- ## Info: %s\n", orNone(table.Comment))
	sb.WriteByte('\n')
	sb.WriteString(r.dialect.CreateTable(table))

	return sb.String()
}

func (r *sqlRenderer) ColumnAdd(col schema.Column, tableName string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "-- ## Adding Column %s on table %s ## --\n", col.Name, tableName)
	sb.WriteString(r.dialect.AddColumn(tableName, col))
	sb.WriteByte('\n')
	sb.WriteString(r.dialect.CommentOnColumn(tableName, col))
	sb.WriteByte('\n')
	sb.WriteString(sectionEnd)

	return sb.String()
}

func (r *sqlRenderer) ColumnChange(change schema.ColumnChange, tableName string) string {
	var sb strings.Builder

	existing := change.Existing().Name

	switch c := change.(type) {
	case schema.DropColumn:
		fmt.Fprintf(&sb, "-- ## Dropping Column %s on table %s ## --\n", existing, tableName)
		sb.WriteString(r.dialect.DropColumn(tableName, existing))
		sb.WriteByte('\n')
		sb.WriteString(sectionEnd)

	case schema.RenameColumn:
		to := c.To
		if to == "" {
			to = RenamePlaceholder
		}
		fmt.Fprintf(&sb, "-- ## Renaming Column %s on table %s ## --\n", existing, tableName)
		sb.WriteString(r.dialect.RenameColumn(tableName, existing, to))
		sb.WriteByte('\n')
		sb.WriteString(sectionEnd)

	case schema.AlterColumn:
		// carried by the custom statement only
	}

	if stmt := change.Custom().Statement; stmt != "" {
		sb.WriteString("-- ## Adding Custom Change SQL Statement ## --\n")
		sb.WriteString(terminate(stmt))
		sb.WriteString(sectionEnd)
	}

	return sb.String()
}

func (r *sqlRenderer) ColumnChangeRevert(change schema.ColumnChange) string {
	if stmt := change.Custom().RevertStatement; stmt != "" {
		return "-- ## Reverting changes ## --\n" + terminate(stmt) + sectionEnd
	}

	return fmt.Sprintf("-- ## No Revert Changes for %s and %s ## --\n", change.Existing().Name, change.Kind())
}

func (r *sqlRenderer) VersionMigration(version schema.Version, tableName string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "-- ## Changing table: %s\n", tableName)
	writeVersionHeader(&sb, version)

	sb.WriteString("\n-- ## Adding New Columns ## --\n")
	for _, col := range version.Columns {
		sb.WriteString(r.ColumnAdd(col, tableName))
	}

	fmt.Fprintf(&sb, "\n-- ## Updating %s ## --\n", tableName)
	for _, change := range version.Changes {
		sb.WriteString(r.ColumnChange(change, tableName))
	}

	return sb.String()
}

// VersionRevert undoes the version's changes, latest first, and then drops
// the columns it added, so columns added and changed in the same version are
// back under their added names when dropped.
func (r *sqlRenderer) VersionRevert(version schema.Version, tableName string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "-- ## Reverting table: %s\n", tableName)
	writeVersionHeader(&sb, version)

	fmt.Fprintf(&sb, "\n-- ## Updating %s ## --\n", tableName)
	for i := len(version.Changes) - 1; i >= 0; i-- {
		sb.WriteString(r.ColumnChangeRevert(version.Changes[i]))
	}

	sb.WriteString("\n-- ## Removing New Columns ## --\n")
	for _, col := range version.Columns {
		sb.WriteString(r.dialect.DropColumn(tableName, col.Name))
		sb.WriteByte('\n')
	}

	return sb.String()
}

// ---

func writeVersionHeader(sb *strings.Builder, version schema.Version) {
	fmt.Fprintf(sb, "-- ## Version: %s\n", version.Name)
	fmt.Fprintf(sb, "-- ## Info: %s\n", orNone(version.Info))
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// terminate ends a raw statement with exactly one semicolon and a newline.
func terminate(stmt string) string {
	return strings.TrimRight(strings.TrimSpace(stmt), ";") + ";\n"
}
