// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import "testing"

func TestDomainSeparation(t *testing.T) {
	t.Parallel()

	data := "same bytes"
	if Snapshot([]byte(data)) == Feedback(data) {
		t.Error("snapshot and feedback domains produced the same hash")
	}
}

func TestDeterministic(t *testing.T) {
	t.Parallel()

	if Feedback("missing null check") != Feedback("missing null check") {
		t.Error("Feedback is not deterministic")
	}
	if Feedback("missing null check") == Feedback("missing nil check") {
		t.Error("different feedback produced the same hash")
	}
}

func TestHashString(t *testing.T) {
	t.Parallel()

	hash := Snapshot(nil)
	if len(hash.String()) != 64 {
		t.Errorf("String() length = %d, want 64", len(hash.String()))
	}
	if hash.Short() != hash.String()[:12] {
		t.Errorf("Short() = %q", hash.Short())
	}
}
