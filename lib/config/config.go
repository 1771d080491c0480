// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"text/template"
	"time"
)

// Tool modes control how much freedom the backend gets.
const (
	ToolModeAmbient      = "ambient"
	ToolModeAllowlisted  = "allowlisted"
	ToolModeUnrestricted = "unrestricted"
)

// Config is the merged configuration for one run. Treat it as
// read-only; derive variants with WithOverrides.
type Config struct {
	// Model is the backend model used for work, fixes, and reviews.
	Model string `yaml:"model"`

	// LightModel is used for summaries, extraction, slugs, and the
	// lightweight review.
	LightModel string `yaml:"light_model"`

	// Effort caps the reasoning effort of every backend call: low,
	// medium, or high.
	Effort string `yaml:"effort"`

	// ToolMode is ambient, allowlisted, or unrestricted.
	ToolMode string `yaml:"tool_mode"`

	// FallbackTools is the space-separated tool allowlist used in
	// allowlisted mode.
	FallbackTools string `yaml:"fallback_tools"`

	// MaxIterations bounds the work loop for each unit.
	MaxIterations int `yaml:"max_iterations"`

	// BranchLength is the maximum length of a generated branch name.
	BranchLength int `yaml:"branch_length"`

	Backend  BackendConfig  `yaml:"backend"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Git      GitConfig      `yaml:"git"`
	Worktree WorktreeConfig `yaml:"worktree"`
	Update   UpdateConfig   `yaml:"update"`

	// Setup commands run serially in a fresh worktree before preflight.
	Setup []Command `yaml:"setup"`

	// Tests are run by the verification engine and by preflight.
	Tests []Command `yaml:"tests"`

	// Format commands run on the changed files before every commit.
	Format []Command `yaml:"format"`

	// Coverage configures the advisory gate run when all steps are done.
	Coverage CoverageConfig `yaml:"coverage"`

	Prompts map[string]string `yaml:"prompts"`
	Schemas map[string]any    `yaml:"schemas"`

	templates map[string]*template.Template
	sources   []string
}

// BackendConfig configures the generation backend process.
type BackendConfig struct {
	// Binary is the backend executable.
	Binary string `yaml:"binary"`

	// Timeout bounds a single backend call. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
}

// TrackerConfig configures the issue tracker client.
type TrackerConfig struct {
	// Endpoint is the GraphQL endpoint.
	Endpoint string `yaml:"endpoint"`

	// APIKeyEnv names the environment variable holding a static API
	// key. A key sent this way goes out unmodified.
	APIKeyEnv string `yaml:"api_key_env"`

	// TokenFile holds an OAuth token written by the login flow. Used
	// when the API key variable is unset.
	TokenFile string `yaml:"token_file"`

	// Timeout bounds each tracker request.
	Timeout time.Duration `yaml:"timeout"`
}

// GitConfig configures commits and branches.
type GitConfig struct {
	// BaseBranch is the branch work branches fork from. History
	// recovery reads BaseBranch..<work branch>.
	BaseBranch string `yaml:"base_branch"`

	// AllowNoVerify permits bypassing rejecting hooks with
	// --no-verify after the hook-fix attempts are spent.
	AllowNoVerify bool `yaml:"allow_no_verify"`

	// Push pushes after every commit.
	Push bool `yaml:"push"`

	// Spice creates branches through git-spice.
	Spice bool `yaml:"spice"`
}

// WorktreeConfig configures scratch worktrees.
type WorktreeConfig struct {
	// Root is the parent directory of session worktrees.
	Root string `yaml:"root"`

	// Preflight runs the test commands in a new worktree before any
	// work begins.
	Preflight bool `yaml:"preflight"`
}

// UpdateConfig configures the startup check for a newer release.
type UpdateConfig struct {
	// Check enables the check. Its failures are only logged.
	Check bool `yaml:"check"`

	// ReleasesURL returns the latest release as GitHub's API does.
	ReleasesURL string `yaml:"releases_url"`

	// CacheFile remembers the last answer between runs.
	CacheFile string `yaml:"cache_file"`

	// Interval is how long a cached answer is trusted.
	Interval time.Duration `yaml:"interval"`
}

// CoverageConfig configures the coverage gate.
type CoverageConfig struct {
	// Run is the shell command; empty disables the gate.
	Run string `yaml:"run"`

	// Paths limits the gate to branches that change matching files.
	// Empty means always.
	Paths []string `yaml:"paths"`

	Timeout time.Duration `yaml:"timeout"`
}

// Command is a configured shell command.
type Command struct {
	Name string `yaml:"name"`
	Run  string `yaml:"run"`

	// Paths are glob patterns with optional brace groups. The command
	// runs only when a changed file matches. Empty means always.
	Paths []string `yaml:"paths,omitempty"`

	// Filter is appended once per failing test when re-running only
	// the failures. "{test}" is replaced with the shell-quoted test
	// identifier.
	Filter string `yaml:"filter,omitempty"`

	// Preflight excludes the command from preflight when false.
	Preflight *bool `yaml:"preflight,omitempty"`

	// Timeout overrides the phase default.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// InPreflight reports whether the command runs during preflight.
func (c Command) InPreflight() bool {
	return c.Preflight == nil || *c.Preflight
}

// Sources lists the layers that contributed to this configuration.
func (c *Config) Sources() []string {
	return slices.Clone(c.sources)
}

// Overrides are command-line settings applied on top of the loaded
// configuration. Zero values leave the loaded setting alone.
type Overrides struct {
	Model         string
	Effort        string
	ToolMode      string
	FallbackTools string
	MaxIterations int
	Push          bool
	Spice         bool
}

// WithOverrides returns a copy of c with the non-zero overrides
// applied. The receiver is not modified.
func (c *Config) WithOverrides(overrides Overrides) *Config {
	clone := *c
	clone.Setup = slices.Clone(c.Setup)
	clone.Tests = slices.Clone(c.Tests)
	clone.Format = slices.Clone(c.Format)
	clone.sources = slices.Clone(c.sources)

	if overrides.Model != "" {
		clone.Model = overrides.Model
	}
	if overrides.Effort != "" {
		clone.Effort = overrides.Effort
	}
	if overrides.ToolMode != "" {
		clone.ToolMode = overrides.ToolMode
	}
	if overrides.FallbackTools != "" {
		clone.FallbackTools = overrides.FallbackTools
	}
	if overrides.MaxIterations > 0 {
		clone.MaxIterations = overrides.MaxIterations
	}
	if overrides.Push {
		clone.Git.Push = true
	}
	if overrides.Spice {
		clone.Git.Spice = true
	}
	return &clone
}

// Schema returns the named output schema as JSON.
func (c *Config) Schema(name string) (json.RawMessage, error) {
	schema, ok := c.Schemas[name]
	if !ok {
		return nil, fmt.Errorf("schema %q is not configured", name)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encoding schema %q: %w", name, err)
	}
	return data, nil
}

// requiredPrompts and requiredSchemas are the names the work loop
// renders. A layer may replace any of them but not remove one.
var (
	requiredPrompts = []string{
		"planning", "slug", "work", "completion_check", "test_extraction",
		"fix", "review_light", "review", "commit_summary", "hook_fix",
		"coverage_fix", "conclusion",
	}
	requiredSchemas = []string{
		"planning", "slug", "work", "completion_check", "test_extraction",
		"review_light", "review", "conclusion",
	}
	efforts = []string{"low", "medium", "high"}
)

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.LightModel == "" {
		errs = append(errs, errors.New("light_model is required"))
	}
	if !slices.Contains(efforts, c.Effort) {
		errs = append(errs, fmt.Errorf("invalid effort %q (want low, medium, or high)", c.Effort))
	}
	switch c.ToolMode {
	case ToolModeAmbient, ToolModeAllowlisted, ToolModeUnrestricted:
	default:
		errs = append(errs, fmt.Errorf("invalid tool_mode %q", c.ToolMode))
	}
	if c.ToolMode == ToolModeAllowlisted && c.FallbackTools == "" {
		errs = append(errs, errors.New("tool_mode allowlisted requires fallback_tools"))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.BranchLength <= 0 {
		errs = append(errs, fmt.Errorf("branch_length must be positive, got %d", c.BranchLength))
	}
	if c.Git.BaseBranch == "" {
		errs = append(errs, errors.New("git.base_branch is required"))
	}
	if c.Update.Check && c.Update.ReleasesURL == "" {
		errs = append(errs, errors.New("update.check requires update.releases_url"))
	}

	groups := []struct {
		name     string
		commands []Command
	}{{"setup", c.Setup}, {"tests", c.Tests}, {"format", c.Format}}
	for _, group := range groups {
		for index, command := range group.commands {
			if command.Name == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: name is required", group.name, index))
			}
			if command.Run == "" {
				errs = append(errs, fmt.Errorf("%s[%d] (%s): run is required", group.name, index, command.Name))
			}
			if command.Timeout < 0 {
				errs = append(errs, fmt.Errorf("%s[%d] (%s): negative timeout", group.name, index, command.Name))
			}
		}
	}

	for _, name := range requiredPrompts {
		if _, ok := c.Prompts[name]; !ok {
			errs = append(errs, fmt.Errorf("prompt %q is missing", name))
		}
	}
	for _, name := range requiredSchemas {
		if _, ok := c.Schemas[name]; !ok {
			errs = append(errs, fmt.Errorf("schema %q is missing", name))
		}
	}

	return errors.Join(errs...)
}

// expandPaths expands ${VAR} and ${VAR:-default} patterns in path
// settings.
func (c *Config) expandPaths() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Worktree.Root = expandVars(c.Worktree.Root, vars)
	c.Tracker.TokenFile = expandVars(c.Tracker.TokenFile, vars)
	c.Update.CacheFile = expandVars(c.Update.CacheFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
