package schema

type ChangeKind uint

const (
	KeyChange ChangeKind = iota
	Drop
	Rename
)

func (k ChangeKind) String() string {
	switch k {
	case Drop:
		return "DROP"
	case Rename:
		return "RENAME"
	default:
		return "KEY_CHANGE"
	}
}

// CustomSQL holds raw statements supplied by the schema author. They are
// rendered after any templated statement of the change.
type CustomSQL struct {
	Statement       string
	RevertStatement string
}

// ColumnChange is one change to an existing column. The set of
// implementations is closed: DropColumn, RenameColumn and AlterColumn.
type ColumnChange interface {
	Kind() ChangeKind
	Existing() Column
	Custom() CustomSQL

	isColumnChange()
}

// ---

type DropColumn struct {
	Column Column
	CustomSQL
}

func (c DropColumn) Kind() ChangeKind  { return Drop }
func (c DropColumn) Existing() Column  { return c.Column }
func (c DropColumn) Custom() CustomSQL { return c.CustomSQL }
func (DropColumn) isColumnChange()     {}

// ---

type RenameColumn struct {
	Column Column
	To     string // empty renders as NA
	CustomSQL
}

func (c RenameColumn) Kind() ChangeKind  { return Rename }
func (c RenameColumn) Existing() Column  { return c.Column }
func (c RenameColumn) Custom() CustomSQL { return c.CustomSQL }
func (RenameColumn) isColumnChange()     {}

// ---

// AlterColumn is a change carried entirely by its custom statements, such as
// a type or key change.
type AlterColumn struct {
	Column      Column
	Replacement *Column
	CustomSQL
}

func (c AlterColumn) Kind() ChangeKind  { return KeyChange }
func (c AlterColumn) Existing() Column  { return c.Column }
func (c AlterColumn) Custom() CustomSQL { return c.CustomSQL }
func (AlterColumn) isColumnChange()     {}
