// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package termrender renders markdown and unified diffs for a
// terminal. The progress document, the review guide, and the diff
// shown when a step completes all go through a [Renderer].
//
// Markdown is parsed with goldmark and walked directly: inline content
// of a block accumulates and is word-wrapped when the block closes,
// so hard-wrapped source reflows at the terminal width. Fenced code
// and diffs are highlighted with chroma. On a writer that is not a
// color terminal the output is plain text with the same layout.
package termrender
