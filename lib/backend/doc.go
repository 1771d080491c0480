// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend drives the external code-generation backend.
//
// The work loop sees a single interface, [Backend], with one blocking
// call per prompt. [CLI] implements it by running the claude binary in
// print mode with the prompt on stdin and JSON output, which wraps the
// model's answer together with token usage and cost. Usage from every
// call is accumulated in a [Meter] so the loop can report per-iteration
// and total spend.
//
// Requests come in two weights. Full requests use the configured model,
// the configured tool mode, and a reasoning effort capped by the
// operator. Light requests (summaries, extraction, slugs) use the light
// model with no tools at all.
//
// Structured answers are decoded with [Decode], which tolerates the
// comments, trailing commas, and code fences models sometimes emit and
// reports anything else as [ErrMalformed].
package backend
