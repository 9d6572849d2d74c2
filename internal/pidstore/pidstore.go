// Package pidstore persists the pid of the managed process in a plain-text file.
//
// The record may be stale: a pid read from disk says nothing about whether the
// process still exists. Callers verify liveness themselves.
package pidstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store reads and writes a single pidfile.
type Store struct {
	path string
}

// New returns a Store backed by path.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Read returns the pid recorded on the first line of the file. ok is false when
// the file is missing or holds nothing usable; err is set only for I/O problems
// other than a missing file.
func (s *Store) Read() (pid int, ok bool, err error) {
	if s.path == "" {
		return 0, false, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("open pidfile %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, false, fmt.Errorf("read pidfile %s: %w", s.path, err)
		}
		return 0, false, nil
	}
	pid, convErr := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if convErr != nil || pid <= 0 {
		return 0, false, nil
	}
	return pid, true, nil
}

// Write replaces the record with pid, creating parent directories as needed.
func (s *Store) Write(pid int) error {
	if s.path == "" {
		return nil
	}
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create pidfile dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pidfile %s: %w", s.path, err)
	}
	return nil
}

// Clear removes the record. A missing file is not an error.
func (s *Store) Clear() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pidfile %s: %w", s.path, err)
	}
	return nil
}
