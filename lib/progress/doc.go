// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress persists the state of a work loop so that an
// interrupted run can resume.
//
// Three records exist, and each can be lost independently:
//
//   - The progress document: a markdown comment on the tracker issue,
//     one per branch, identified by its first line. It holds the plan,
//     decision records, exploration findings, iteration count and a
//     rolling log, and is meant to be read by people as well as parsed.
//   - Commit trailers: "Lisa-*" lines on every loop commit, recording
//     the iteration, pass/fail status and the failure signal that the
//     next iteration must address.
//   - A local checkpoint snapshot under .lisa/state: the same state as
//     the document in a versioned CBOR schema, digest-checked and zstd
//     compressed. It covers a missing or unreadable document.
//
// [Reconcile] merges whatever survived into one [State]. Older runs
// wrote "tralph" headers and "Tralph-" trailers; both are accepted on
// read and never written.
package progress
