// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the lisa binary:
// fatal error reporting before the structured logger exists, and the
// mapping from a run's final error to a process exit code.
package process
