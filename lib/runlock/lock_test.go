// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runlock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquire_Exclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".lisa", "run.lock")
	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	// flock locks belong to the open file description, so a second
	// open in the same process contends like another process would.
	_, err = Acquire(path)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire error = %v, want ErrLocked", err)
	}
	if !strings.Contains(err.Error(), "held by pid") {
		t.Errorf("error should name the holder: %v", err)
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	lock, err := AcquireRepo(root)
	if err != nil {
		t.Fatalf("AcquireRepo: %v", err)
	}
	if lock.Path() != filepath.Join(root, DefaultPath) {
		t.Errorf("Path() = %q", lock.Path())
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}

	again, err := AcquireRepo(root)
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	defer again.Release()

	data, err := os.ReadFile(again.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "pid ") {
		t.Errorf("lock file content = %q, want holder line", data)
	}
}
