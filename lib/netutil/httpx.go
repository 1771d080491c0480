// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response handling for the tracker and
// OAuth clients.
//
// Every body read goes through io.LimitReader at MaxResponseSize. Error
// bodies are additionally cut to ErrorExcerptSize so a misbehaving
// server cannot flood log lines or operator output.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize is the bound on JSON response body reads: 32 MB.
// Tracker payloads are a few kilobytes.
const MaxResponseSize int64 = 32 << 20

// ErrorExcerptSize is the number of bytes of an error body kept for
// diagnostics.
const ErrorExcerptSize = 500

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body (up to MaxResponseSize bytes)
// and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ErrorBody reads an error response body and returns a trimmed excerpt
// for an error message. Read errors are ignored; a partial body still
// helps.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, ErrorExcerptSize+1))
	excerpt := strings.TrimSpace(string(data))
	if len(excerpt) > ErrorExcerptSize {
		excerpt = excerpt[:ErrorExcerptSize] + "..."
	}
	return excerpt
}
