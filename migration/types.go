// Package migration holds the types shared by the migrator and its drivers.
package migration

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/xxh3"
)

type Direction rune

const (
	Down Direction = 'd'
	Up   Direction = 'u'
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// ---

// Migration identifies one generated file pair: a table's root file
// (Version is schema.RootVersion) or one of its versions.
type Migration struct {
	Schema  string
	Version string
}

func (m Migration) String() string {
	return m.Schema + "@" + m.Version
}

// ---

type Status uint

const (
	Pending Status = iota
	Applied
	Missing
	Modified
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Missing:
		return "missing"
	case Modified:
		return "modified"
	default:
		return "pending"
	}
}

// ---

type Log struct {
	Migration
	Direction
	Checksum  string
	AppliedAt time.Time
}

// ---

type Description struct {
	Migration
	CanUndo bool
}

type State struct {
	Description
	Status    Status
	AppliedAt time.Time
}

// ---

// Checksum fingerprints a migration script.
func Checksum(script string) string {
	sum := xxh3.HashString128(script).Bytes()
	return hex.EncodeToString(sum[:])
}
