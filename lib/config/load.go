// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// defaultLayers are merged in this order to form the embedded base.
var defaultLayers = []string{"defaults/config.yaml", "defaults/prompts.yaml", "defaults/schemas.yaml"}

// ProjectFile is the project layer, relative to the repository root.
const ProjectFile = ".lisa/config.yaml"

// UserFile returns the path of the user layer, honoring
// XDG_CONFIG_HOME.
func UserFile() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "lisa", "config.yaml")
}

// Layers names the optional files merged over the embedded defaults.
// Empty paths and missing files are skipped.
type Layers struct {
	User    string
	Project string
}

// Load merges the embedded defaults, the user layer, and the project
// layer of the repository at projectDir, then validates the result.
func Load(projectDir string) (*Config, error) {
	return LoadLayers(Layers{
		User:    UserFile(),
		Project: filepath.Join(projectDir, ProjectFile),
	})
}

// Defaults returns the validated embedded configuration alone.
func Defaults() (*Config, error) {
	return LoadLayers(Layers{})
}

// LoadLayers merges the embedded defaults with the given layers.
func LoadLayers(layers Layers) (*Config, error) {
	merged := map[string]any{}
	for _, name := range defaultLayers {
		data, err := fs.ReadFile(defaultsFS, name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded %s: %w", name, err)
		}
		tree, err := parseTree(data)
		if err != nil {
			return nil, fmt.Errorf("parsing embedded %s: %w", name, err)
		}
		merged = deepMerge(merged, tree)
	}
	sources := []string{"defaults"}

	for _, path := range []string{layers.User, layers.Project} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		tree, err := parseTree(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if len(tree) == 0 {
			continue
		}
		merged = deepMerge(merged, tree)
		sources = append(sources, path)
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, fmt.Errorf("decoding merged configuration from %s: %w", strings.Join(sources, ", "), err)
	}
	cfg.sources = sources
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.compilePrompts(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseTree reads a YAML document as a generic map. An empty document
// yields an empty map; a document whose root is not a mapping is an
// error.
func parseTree(data []byte) (map[string]any, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// deepMerge merges override into base and returns the result. Nested
// maps merge recursively; every other value in override replaces the
// one in base. Neither input is modified.
func deepMerge(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range override {
		baseMap, baseIsMap := merged[key].(map[string]any)
		overrideMap, overrideIsMap := value.(map[string]any)
		if baseIsMap && overrideIsMap {
			merged[key] = deepMerge(baseMap, overrideMap)
			continue
		}
		merged[key] = value
	}
	return merged
}

// decode converts the merged tree into a Config. Unknown keys are
// rejected so a misspelled setting fails loudly.
func decode(tree map[string]any) (*Config, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) compilePrompts() error {
	templates := make(map[string]*template.Template, len(c.Prompts))
	for name, source := range c.Prompts {
		compiled, err := template.New(name).Option("missingkey=error").Parse(source)
		if err != nil {
			return fmt.Errorf("prompt %q: %w", name, err)
		}
		templates[name] = compiled
	}
	c.templates = templates
	return nil
}

// Render executes the named prompt template with data.
func (c *Config) Render(name string, data any) (string, error) {
	compiled, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q is not configured", name)
	}
	var output strings.Builder
	if err := compiled.Execute(&output, data); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", name, err)
	}
	return output.String(), nil
}

// Starter returns a project configuration file for "lisa init" with
// the given test commands, or a placeholder when none are known.
func Starter(tests []Command) ([]byte, error) {
	if len(tests) == 0 {
		tests = []Command{{Name: "Tests", Run: "echo 'replace with your test command'"}}
	}
	starter := struct {
		Tests  []Command `yaml:"tests"`
		Format []Command `yaml:"format,omitempty"`
	}{Tests: tests}
	var buffer bytes.Buffer
	buffer.WriteString("# lisa project configuration. Values here override ~/.config/lisa/config.yaml.\n")
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(2)
	if err := encoder.Encode(starter); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
