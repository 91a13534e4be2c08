package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/root-talis/sakusei/schema"
)

// Dialect renders single SQL statements. Implementations never emit banner
// comments; framing is done by the renderer.
type Dialect interface {
	Name() string
	CreateTable(table schema.Table) string
	AddColumn(table string, col schema.Column) string
	CommentOnColumn(table string, col schema.Column) string
	DropColumn(table, column string) string
	RenameColumn(table, from, to string) string
}

var ErrUnknownDialect = errors.New("unknown SQL dialect")

// DialectByName returns the dialect registered under name ("postgres" or "mysql").
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "":
		return Postgres{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("%w: \"%s\"", ErrUnknownDialect, name)
	}
}

// ---

type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (d Postgres) CreateTable(table schema.Table) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "CREATE TABLE %s (\n  %s\n);\n", table.Name, joinColumnDefs(table.Columns, ",\n  ", nil))

	if table.Comment != "" {
		fmt.Fprintf(&sb, "COMMENT ON TABLE %s IS %s;\n", table.Name, quote(table.Comment))
	}
	for _, col := range table.Columns {
		sb.WriteString(d.CommentOnColumn(table.Name, col))
		sb.WriteByte('\n')
	}

	return sb.String()
}

func (Postgres) AddColumn(table string, col schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, columnDef(col))
}

func (Postgres) CommentOnColumn(table string, col schema.Column) string {
	return fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s;", table, col.Name, quote(col.Comment))
}

func (Postgres) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, column)
}

func (Postgres) RenameColumn(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME %s TO %s;", table, from, to)
}

// ---

// MySQL keeps comments inline with column definitions, as MySQL has no
// COMMENT ON statement.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) CreateTable(table schema.Table) string {
	withComment := func(col schema.Column) string {
		return columnDef(col) + " COMMENT " + quote(col.Comment)
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table.Name, joinColumnDefs(table.Columns, ",\n  ", withComment))
	if table.Comment != "" {
		stmt += " COMMENT = " + quote(table.Comment)
	}

	return stmt + ";\n"
}

func (MySQL) AddColumn(table string, col schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, columnDef(col))
}

func (MySQL) CommentOnColumn(table string, col schema.Column) string {
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s COMMENT %s;", table, columnDef(col), quote(col.Comment))
}

func (MySQL) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, column)
}

func (MySQL) RenameColumn(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s;", table, from, to)
}

// ---

func columnDef(col schema.Column) string {
	def := col.Name + " " + col.Type
	if c := strings.TrimSpace(col.Constraints); c != "" {
		def += " " + c
	}
	return def
}

func joinColumnDefs(cols []schema.Column, sep string, render func(schema.Column) string) string {
	if render == nil {
		render = columnDef
	}

	defs := make([]string, 0, len(cols))
	for _, col := range cols {
		defs = append(defs, render(col))
	}

	return strings.Join(defs, sep)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
