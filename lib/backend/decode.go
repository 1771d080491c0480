// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrMalformed reports a response that could not be decoded into the
// expected structure.
var ErrMalformed = errors.New("malformed backend response")

// Decode parses a response into T. Structured output is preferred;
// otherwise the text is parsed after stripping a surrounding code fence
// and normalizing JSON-with-comments. Failures wrap ErrMalformed.
func Decode[T any](response Response) (T, error) {
	var value T
	data := []byte(response.Structured)
	if len(data) == 0 {
		text := stripFence(strings.TrimSpace(response.Text))
		if text == "" {
			return value, fmt.Errorf("%w: empty response", ErrMalformed)
		}
		data = jsonc.ToJSON([]byte(text))
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return value, nil
}

// stripFence removes a ```json ... ``` wrapper.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		text = text[newline+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
