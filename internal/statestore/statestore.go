// Package statestore is the filesystem-backed key-value store behind marker
// and lock files. Every piece of cross-process mutable state (autofix marker,
// worker PID file, session start records) goes through this interface so the
// substrate stays swappable.
package statestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned by Read when no entry exists under the name.
var ErrNotFound = errors.New("state entry not found")

// Store is the minimal surface the guard and supervisor need.
// TryAcquire is create-if-absent (the lock primitive); Write overwrites.
type Store interface {
	// TryAcquire atomically creates the entry with value iff it does not
	// already exist. Returns false with a nil error when another holder won.
	TryAcquire(name, value string) (bool, error)
	// Read returns the entry's value and last-modified time.
	Read(name string) (value string, modTime time.Time, err error)
	// Write creates or replaces the entry.
	Write(name, value string) error
	// Clear removes the entry. Removing an absent entry is not an error.
	Clear(name string) error
}

// FileStore implements Store with one file per entry under a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a Store rooted at dir. The directory must exist.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) entryPath(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("invalid state entry name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// TryAcquire implements Store. O_EXCL makes creation the atomic winner-picks
// step; losers see false and re-check whatever the value guards.
func (s *FileStore) TryAcquire(name, value string) (bool, error) {
	path, err := s.entryPath(name)
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquire %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(value); err != nil {
		// A half-written lock is worse than no lock; undo the claim.
		_ = os.Remove(path)
		return false, fmt.Errorf("write %s: %w", name, err)
	}
	return true, nil
}

// Read implements Store.
func (s *FileStore) Read(name string) (string, time.Time, error) {
	path, err := s.entryPath(name)
	if err != nil {
		return "", time.Time{}, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, fmt.Errorf("read %s: %w", name, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return string(b), info.ModTime(), nil
}

// Write implements Store.
func (s *FileStore) Write(name, value string) error {
	path, err := s.entryPath(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(value), 0640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear(name string) error {
	path, err := s.entryPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	return nil
}
