// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lisa/cmd/lisa/cli"
	"github.com/bureau-foundation/lisa/lib/atomicfile"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/git"
)

// stateIgnore keeps run state out of commits.
const stateIgnore = `# lisa run state
state/
run.lock
test-failure.log
debug.log
`

// testDetector recognizes a project type by a marker file.
type testDetector struct {
	marker  string
	command config.Command
}

var testDetectors = []testDetector{
	{"go.mod", config.Command{Name: "Go tests", Run: "go test ./...", Paths: []string{"*.go", "go.{mod,sum}"}}},
	{"Cargo.toml", config.Command{Name: "Cargo tests", Run: "cargo test", Paths: []string{"*.rs", "Cargo.{toml,lock}"}}},
	{"package.json", config.Command{Name: "npm tests", Run: "npm test", Paths: []string{"*.{js,jsx,ts,tsx}", "package.json"}}},
	{"pyproject.toml", config.Command{Name: "pytest", Run: "pytest", Paths: []string{"*.py", "pyproject.toml"}}},
}

func initCommand(stdout io.Writer) *cli.Command {
	var force bool
	return &cli.Command{
		Name:    "init",
		Summary: "Write a starter .lisa/config.yaml for this repository",
		Description: `Write a starter project configuration with test commands detected
from the repository's marker files, and a .lisa/.gitignore that keeps
run state out of commits. Edit the tests, format and setup sections
before the first run.`,
		Usage: "lisa init [flags]",
		Flags: func() *pflag.FlagSet {
			force = false
			flagSet := pflag.NewFlagSet("init", pflag.ContinueOnError)
			flagSet.BoolVar(&force, "force", false, "overwrite an existing project configuration")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
			}
			workingDir, err := os.Getwd()
			if err != nil {
				return err
			}
			dir, err := git.NewRepository(workingDir).TopLevel(ctx)
			if err != nil {
				return fmt.Errorf("lisa init must run inside a git repository: %w", err)
			}
			return initProject(dir, force, stdout)
		},
	}
}

// ErrConfigExists is returned by init when the project already has a
// configuration and --force was not given.
var ErrConfigExists = errors.New("project configuration already exists")

// initProject writes the starter configuration and state ignore file
// under dir.
func initProject(dir string, force bool, out io.Writer) error {
	path := filepath.Join(dir, config.ProjectFile)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	tests := detectTests(dir)
	starter, err := config.Starter(tests)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := atomicfile.Write(path, starter, 0o644); err != nil {
		return err
	}
	ignore := filepath.Join(filepath.Dir(path), ".gitignore")
	if err := atomicfile.Write(ignore, []byte(stateIgnore), 0o644); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %s\n", path)
	if len(tests) == 0 {
		fmt.Fprintln(out, "No test command detected; edit the tests section before the first run.")
	}
	for _, test := range tests {
		fmt.Fprintf(out, "  tests: %s (%s)\n", test.Name, test.Run)
	}
	return nil
}

// detectTests returns a test command for every marker file present at
// the top of dir.
func detectTests(dir string) []config.Command {
	var tests []config.Command
	for _, detector := range testDetectors {
		if _, err := os.Stat(filepath.Join(dir, detector.marker)); err == nil {
			tests = append(tests, detector.command)
		}
	}
	return tests
}
