// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the lisa command tree. Running lisa with
// unit IDs and no subcommand is the default flow; the subcommands
// inspect a unit, review or conclude a branch, set a project up, and
// manage tracker credentials.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/lisa/cmd/lisa/cli"
	"github.com/bureau-foundation/lisa/lib/version"
)

// Root builds the complete command tree writing results to stdout.
func Root() *cli.Command {
	return newRoot(os.Stdout)
}

func newRoot(stdout io.Writer) *cli.Command {
	run := runCommand()
	root := &cli.Command{
		Name: "lisa",
		Description: `lisa: work through tracker units with a generation backend.

For each unit, lisa plans granular steps, implements them one at a
time with tests and review after every step, commits each step, and
keeps a progress document on the unit so an interrupted run resumes
where it stopped.`,
		Usage: "lisa <unit>... [flags] | lisa <command> [flags]",
		Flags: run.Flags,
		Run:   run.Run,
		Subcommands: []*cli.Command{
			run,
			statusCommand(),
			reviewCommand(),
			concludeCommand(),
			initCommand(stdout),
			loginCommand(),
			logoutCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string) error {
					fmt.Fprintf(stdout, "lisa %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Plan and implement a unit",
				Command:     "lisa ENG-123",
			},
			{
				Description: "Run two units in series, capping effort",
				Command:     "lisa ENG-123 ENG-456 --effort medium",
			},
			{
				Description: "Confirm planning decisions before work starts",
				Command:     "lisa ENG-123 -i",
			},
			{
				Description: "Work in a throwaway worktree after checking the tests pass",
				Command:     "lisa ENG-123 -w -c",
			},
			{
				Description: "Show a unit's plan and progress without changing anything",
				Command:     "lisa status ENG-123",
			},
			{
				Description: "Set up a project",
				Command:     "lisa init",
			},
		},
	}
	return root
}
