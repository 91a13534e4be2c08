// Package storage abstracts the filesystem holding generated SQL files.
package storage

import "errors"

type Storage interface {
	Exists(path string) (bool, error)
	// DirExists is Exists for directories.
	DirExists(path string) (bool, error)
	Read(path string) (string, error)
	Write(path string, content string) error
	Remove(path string) error

	// MakeDir creates a single directory; its parent must exist. An existing
	// directory is not an error.
	MakeDir(path string) error
	RemoveAll(path string) error
}

var (
	ErrNotAFile      = errors.New("path is not a regular file")
	ErrNotADirectory = errors.New("path is not a directory")
)
