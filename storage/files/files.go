package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/root-talis/sakusei/storage"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

type filesStorage struct{}

// NewFilesStorage returns a storage on top of the local filesystem.
func NewFilesStorage() storage.Storage {
	return &filesStorage{}
}

func (s *filesStorage) Exists(path string) (bool, error) {
	stat, err := os.Stat(path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	case !stat.Mode().IsRegular():
		return false, fmt.Errorf("%w: %s", storage.ErrNotAFile, path)
	}

	return true, nil
}

func (s *filesStorage) DirExists(path string) (bool, error) {
	stat, err := os.Stat(path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	case !stat.IsDir():
		return false, fmt.Errorf("%w: %s", storage.ErrNotADirectory, path)
	}

	return true, nil
}

func (s *filesStorage) Read(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(content), nil
}

func (s *filesStorage) Write(path string, content string) error {
	if err := os.WriteFile(path, []byte(content), fileMode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *filesStorage) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (s *filesStorage) MakeDir(path string) error {
	err := os.Mkdir(path, dirMode)
	if err == nil {
		return nil
	}

	if errors.Is(err, fs.ErrExist) {
		stat, statErr := os.Stat(path)
		if statErr == nil && stat.IsDir() {
			return nil
		}
		return fmt.Errorf("%w: %s", storage.ErrNotADirectory, path)
	}

	return fmt.Errorf("failed to create directory %s: %w", path, err)
}

func (s *filesStorage) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
