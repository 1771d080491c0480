// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides layered YAML configuration for lisa.
//
// Three layers are merged in order, later layers winning:
//
//   - the defaults embedded in the binary (defaults/*.yaml)
//   - the user file, ~/.config/lisa/config.yaml
//   - the project file, .lisa/config.yaml in the repository
//
// Maps merge recursively; lists and scalars replace. A project that
// sets "tests" replaces the whole list, while a project that sets
// "git.push" leaves every other git setting alone.
//
// The result is an immutable [Config]. Command-line flags never write
// into a loaded Config; they derive a copy through [Config.WithOverrides].
//
// Prompts and output schemas live in the same tree under "prompts" and
// "schemas" so a project can override a single prompt without
// copying the rest. Prompts are text/template sources compiled once at
// load time; [Config.Render] executes them.
//
// Variable expansion (${HOME}, ${VAR:-default}) is applied to path
// settings after merging.
package config
