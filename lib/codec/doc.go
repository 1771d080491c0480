// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides lisa's CBOR encoding configuration.
//
// JSON is the format for everything that crosses a process boundary:
// backend responses, tracker requests, CLI output. CBOR is used for
// the local checkpoint snapshot under .lisa/state, where the encoding
// must be compact and byte-for-byte reproducible so a digest over it
// detects corruption.
//
// Types in lib/plan carry `json` tags only; fxamacker/cbor reads them
// as a fallback, so one tag controls field naming in both formats.
// Types that only ever appear in the snapshot use `cbor` tags.
package codec
