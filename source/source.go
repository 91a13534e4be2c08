// Package source loads table schema definitions.
package source

import (
	"errors"

	"github.com/root-talis/sakusei/schema"
)

type Source interface {
	LoadTables() ([]schema.Table, error)
}

var (
	ErrSchemaDuplicated   = errors.New("schema class name is already defined")
	ErrUnknownChangeType  = errors.New("unknown column change type")
	ErrInvalidDefinitions = errors.New("invalid schema definitions")
)
