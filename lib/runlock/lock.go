// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPath is the lock file location relative to a repository root.
const DefaultPath = ".lisa/run.lock"

// ErrLocked is returned by Acquire when another process holds the lock.
var ErrLocked = errors.New("another lisa run holds the repository lock")

// Lock is a held run lock. Release it when the run ends.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the lock at path without blocking, creating the file
// and its parent directory as needed. When the lock is held elsewhere
// the returned error wraps ErrLocked and includes the holder recorded
// in the file.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(file)
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if holder == "" {
				return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
			}
			return nil, fmt.Errorf("%w (%s, held by %s)", ErrLocked, path, holder)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	// The holder line is informational; a failure to write it does not
	// weaken the lock.
	if err := file.Truncate(0); err == nil {
		fmt.Fprintf(file, "pid %d since %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
		file.Sync()
	}
	return &Lock{file: file, path: path}, nil
}

// AcquireRepo takes the lock at DefaultPath under root.
func AcquireRepo(root string) (*Lock, error) {
	return Acquire(filepath.Join(root, DefaultPath))
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. Calling Release more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	file.Truncate(0)
	if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil {
		file.Close()
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return file.Close()
}

func readHolder(file *os.File) string {
	buffer := make([]byte, 128)
	count, _ := file.ReadAt(buffer, 0)
	return strings.TrimSpace(string(buffer[:count]))
}
