// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The work loop stamps log entries, formats the "last run" row of the
// progress document, and measures how long each step and unit took.
// All of that reads time through a Clock so tests can pin it:
//
//	fake := clock.Fake(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC))
//	machine := workloop.New(workloop.Config{Clock: fake, ...})
//	fake.Advance(2 * time.Minute)
package clock
