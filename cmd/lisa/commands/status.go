// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lisa/cmd/lisa/cli"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/session"
	"github.com/bureau-foundation/lisa/lib/verify"
)

func statusCommand() *cli.Command {
	var (
		logging logFlags
		branch  string
		diff    bool
	)
	return &cli.Command{
		Name:    "status",
		Summary: "Show a unit's plan and progress without changing anything",
		Description: `Show the recovered progress of each unit: existing branches, the
plan with the current step marked, decisions, and the iteration
count. Nothing is created or written.`,
		Usage: "lisa status <unit>... [flags]",
		Flags: func() *pflag.FlagSet {
			logging, branch, diff = logFlags{}, "", false
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			logging.register(flagSet)
			flagSet.StringVar(&branch, "branch", "", "branch to describe (default: the current or newest unit branch)")
			flagSet.BoolVar(&diff, "diff", false, "also show the branch diff when the branch is checked out")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("at least one unit ID is required")
			}
			env, err := openEnvironment(ctx, logging, config.Overrides{})
			if err != nil {
				return err
			}
			defer env.Close()
			return showStatus(ctx, env, args, session.StatusRequest{Branch: branch, ShowDiff: diff})
		},
	}
}

func showStatus(ctx context.Context, env *environment, units []string, request session.StatusRequest) error {
	s, err := env.session(session.Options{})
	if err != nil {
		return err
	}
	for _, unit := range units {
		request.Unit = unit
		if err := s.Status(ctx, request); err != nil {
			return err
		}
	}
	return nil
}

func reviewCommand() *cli.Command {
	var logging logFlags
	return &cli.Command{
		Name:    "review",
		Summary: "Review the current branch and print the report",
		Description: `Run the full review over everything the current branch changed
against the base branch and print the findings. Exits 1 when the
review does not approve the branch.`,
		Usage: "lisa review <unit> [flags]",
		Flags: func() *pflag.FlagSet {
			logging = logFlags{}
			flagSet := pflag.NewFlagSet("review", pflag.ContinueOnError)
			logging.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			unit, err := oneUnit(args)
			if err != nil {
				return err
			}
			env, err := openEnvironment(ctx, logging, config.Overrides{})
			if err != nil {
				return err
			}
			defer env.Close()
			return reviewOnly(ctx, env, unit)
		},
	}
}

func reviewOnly(ctx context.Context, env *environment, unit string) error {
	s, err := env.session(session.Options{})
	if err != nil {
		return err
	}
	report, err := s.ReviewOnly(ctx, unit)
	if err != nil {
		return err
	}
	return reviewExit(report)
}

// reviewExit turns a report that was already printed into the exit
// status.
func reviewExit(report verify.Report) error {
	if report.Approved {
		return nil
	}
	return &cli.ExitError{Code: 1}
}

func concludeCommand() *cli.Command {
	var logging logFlags
	return &cli.Command{
		Name:    "conclude",
		Summary: "Write the review guide for the current branch",
		Description: `Generate the review guide for the checked-out unit branch, print it,
and attach it to the branch's progress document.`,
		Usage: "lisa conclude <unit> [flags]",
		Flags: func() *pflag.FlagSet {
			logging = logFlags{}
			flagSet := pflag.NewFlagSet("conclude", pflag.ContinueOnError)
			logging.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			unit, err := oneUnit(args)
			if err != nil {
				return err
			}
			env, err := openEnvironment(ctx, logging, config.Overrides{})
			if err != nil {
				return err
			}
			defer env.Close()
			return conclude(ctx, env, unit)
		},
	}
}

func conclude(ctx context.Context, env *environment, unit string) error {
	s, err := env.session(session.Options{})
	if err != nil {
		return err
	}
	_, err = s.Conclude(ctx, unit)
	return err
}
