// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runlock holds an advisory exclusive lock on a repository so
// that two work loops never drive the same working tree.
//
// The lock is a flock(2) on a file under the repository's .lisa
// directory. The kernel releases it when the holding process exits, so
// a crashed run never leaves a stale lock behind. The file records the
// holder's PID and start time for the error message a second run
// prints.
package runlock
