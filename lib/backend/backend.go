// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"fmt"
)

// Backend runs one prompt to completion.
type Backend interface {
	Invoke(ctx context.Context, request Request) (Response, error)
}

// Request is a single backend call.
type Request struct {
	Prompt string

	// Effort is the phase's default reasoning effort. The backend caps
	// it at the operator's limit. Ignored for light requests.
	Effort Effort

	// Schema, when set, asks for structured output matching it.
	Schema json.RawMessage

	// Light selects the light model with no tool access.
	Light bool
}

// Response is what the backend returned.
type Response struct {
	// Text is the plain result, or the raw output when the wrapper
	// could not be parsed.
	Text string

	// Structured is the structured output when a schema was sent and
	// the backend honored it.
	Structured json.RawMessage

	Usage Usage
}

// Effort is a reasoning effort level.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Phase defaults, before the operator's cap.
const (
	EffortWork        = EffortHigh
	EffortPlanning    = EffortHigh
	EffortReview      = EffortMedium
	EffortLightweight = EffortLow
	EffortQuick       = EffortLow
)

func (e Effort) rank() int {
	switch e {
	case EffortLow:
		return 0
	case EffortMedium:
		return 1
	default:
		return 2
	}
}

// Cap returns the lower of e and limit. An empty limit leaves e alone.
func (e Effort) Cap(limit Effort) Effort {
	if limit == "" {
		return e
	}
	if limit.rank() < e.rank() {
		return limit
	}
	return e
}

// ParseEffort validates an effort name.
func ParseEffort(name string) (Effort, error) {
	switch effort := Effort(name); effort {
	case EffortLow, EffortMedium, EffortHigh:
		return effort, nil
	}
	return "", fmt.Errorf("invalid effort %q (want low, medium, or high)", name)
}

// ToolMode controls the tool access of full requests.
type ToolMode string

const (
	// ToolModeAmbient defers to the repository's own backend settings.
	ToolModeAmbient ToolMode = "ambient"

	// ToolModeAllowlisted passes an explicit tool allowlist.
	ToolModeAllowlisted ToolMode = "allowlisted"

	// ToolModeUnrestricted skips every permission check. Only for
	// isolated environments.
	ToolModeUnrestricted ToolMode = "unrestricted"
)

// ParseToolMode validates a tool mode name.
func ParseToolMode(name string) (ToolMode, error) {
	switch mode := ToolMode(name); mode {
	case ToolModeAmbient, ToolModeAllowlisted, ToolModeUnrestricted:
		return mode, nil
	}
	return "", fmt.Errorf("invalid tool mode %q", name)
}
