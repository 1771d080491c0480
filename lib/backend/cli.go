// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// CLIConfig configures a CLI backend.
type CLIConfig struct {
	// Binary is the backend executable. Defaults to "claude".
	Binary string

	// Dir is the working directory of the backend process, normally
	// the repository the loop works in.
	Dir string

	// Model is used for full requests; LightModel for light ones.
	Model      string
	LightModel string

	ToolMode      ToolMode
	FallbackTools string

	// EffortCap limits the effort of every full request.
	EffortCap Effort

	// Timeout bounds a single call. Zero means no limit beyond ctx.
	Timeout time.Duration

	// Meter receives the usage of every call. Optional.
	Meter *Meter

	// Logger defaults to slog.Default(). Raw outputs are logged at
	// debug level.
	Logger *slog.Logger
}

// CLI runs the backend as a subprocess, one process per request.
type CLI struct {
	config CLIConfig
	logger *slog.Logger
}

// NewCLI returns a CLI backend.
func NewCLI(config CLIConfig) (*CLI, error) {
	if config.Binary == "" {
		config.Binary = "claude"
	}
	if config.Model == "" || config.LightModel == "" {
		return nil, errors.New("backend: model and light model are required")
	}
	if config.ToolMode == "" {
		config.ToolMode = ToolModeAmbient
	}
	if config.ToolMode == ToolModeAllowlisted && strings.TrimSpace(config.FallbackTools) == "" {
		return nil, errors.New("backend: allowlisted tool mode requires fallback tools")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{config: config, logger: logger}, nil
}

// ProcessError is returned when the backend process fails without
// producing any output.
type ProcessError struct {
	Err    error
	Stderr string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("backend process failed: %v (stderr: %s)", e.Err, e.Stderr)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Args returns the command-line arguments for request, without the
// binary name.
func (c *CLI) Args(request Request) []string {
	model := c.config.Model
	if request.Light {
		model = c.config.LightModel
	}
	args := []string{"-p", "--model", model, "--output-format", "json"}

	if !request.Light {
		switch c.config.ToolMode {
		case ToolModeAllowlisted:
			args = append(args, "--allowedTools", normalizeTools(c.config.FallbackTools))
		case ToolModeUnrestricted:
			args = append(args, "--dangerously-skip-permissions")
		}
		if request.Effort != "" {
			args = append(args, "--effort", string(request.Effort.Cap(c.config.EffortCap)))
		}
	}
	if len(request.Schema) > 0 {
		args = append(args, "--json-schema", string(request.Schema))
	}
	return args
}

// Invoke runs one request. A process that exits non-zero but still
// writes output is logged and its output used; one that writes nothing
// is a *ProcessError.
func (c *CLI) Invoke(ctx context.Context, request Request) (Response, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, c.config.Binary, c.Args(request)...)
	command.Dir = c.config.Dir
	command.Stdin = strings.NewReader(request.Prompt)
	command.Stdout = &stdout
	command.Stderr = &stderr

	runErr := command.Run()
	if ctx.Err() != nil {
		return Response{}, fmt.Errorf("backend call: %w", ctx.Err())
	}
	output := stdout.String()
	if runErr != nil {
		if strings.TrimSpace(output) == "" {
			return Response{}, &ProcessError{Err: runErr, Stderr: truncate(strings.TrimSpace(stderr.String()), 500)}
		}
		c.logger.Warn("backend exited with error, using its output",
			"error", runErr, "stderr", truncate(stderr.String(), 500))
	}

	response := parseWrapper(output, len(request.Schema) > 0)
	c.logger.Debug("backend output",
		"light", request.Light,
		"structured", len(response.Structured) > 0,
		"usage", response.Usage.String(),
		"raw", output)
	if c.config.Meter != nil {
		c.config.Meter.Record(response.Usage)
	}
	return response, nil
}

// wrapper is the JSON envelope printed by --output-format json.
type wrapper struct {
	Result           *string         `json:"result"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	TotalCostUSD     float64         `json:"total_cost_usd"`
	Usage            *Usage          `json:"usage"`
}

// parseWrapper extracts the answer and usage from backend output.
// Output that is not a JSON object is returned as plain text.
func parseWrapper(output string, wantStructured bool) Response {
	var envelope wrapper
	if err := json.Unmarshal([]byte(output), &envelope); err != nil {
		return Response{Text: output}
	}

	var response Response
	if envelope.Usage != nil {
		response.Usage = *envelope.Usage
	}
	if envelope.TotalCostUSD != 0 {
		response.Usage.CostUSD = envelope.TotalCostUSD
	}

	structured := bytes.TrimSpace(envelope.StructuredOutput)
	if wantStructured && len(structured) > 0 && !bytes.Equal(structured, []byte("null")) {
		// Some versions deliver the structured answer as a JSON
		// string holding the document.
		var inner string
		if json.Unmarshal(structured, &inner) == nil {
			response.Text = inner
		} else {
			response.Structured = json.RawMessage(structured)
		}
		return response
	}
	if envelope.Result != nil {
		response.Text = *envelope.Result
		return response
	}
	response.Text = output
	return response
}

// normalizeTools collapses the configured tool list, which may span
// several YAML lines, into one space-separated argument.
func normalizeTools(tools string) string {
	return strings.Join(strings.Fields(tools), " ")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
