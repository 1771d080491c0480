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
	"github.com/bureau-foundation/lisa/lib/version"
)

// runFlags are the flags of the default flow.
type runFlags struct {
	logFlags

	maxIterations     int
	effort            string
	model             string
	skipPlan          bool
	skipVerify        bool
	interactive       bool
	alwaysInteractive bool
	worktree          bool
	preflight         bool
	spice             bool
	push              bool
	fallbackTools     bool
	yolo              bool

	dryRun     bool
	reviewOnly bool
	conclusion bool
}

func (f *runFlags) register(flagSet *pflag.FlagSet) {
	f.logFlags.register(flagSet)
	flagSet.IntVarP(&f.maxIterations, "max-iterations", "n", 0, "iterations per unit before stopping (default from config, 30)")
	flagSet.StringVar(&f.effort, "effort", "", "cap the effort of every backend call: low, medium, or high")
	flagSet.StringVarP(&f.model, "model", "m", "", "backend model for work, fixes and reviews")
	flagSet.BoolVar(&f.skipPlan, "skip-plan", false, "skip planning and use the unit's children as steps")
	flagSet.BoolVar(&f.skipVerify, "skip-verify", false, "skip tests and review after each step")
	flagSet.BoolVarP(&f.interactive, "interactive", "i", false, "confirm planning decisions before work starts")
	flagSet.BoolVarP(&f.alwaysInteractive, "always-interactive", "I", false, "confirm decisions after planning and after every work iteration")
	flagSet.BoolVarP(&f.worktree, "worktree", "w", false, "work in a temporary worktree, removed on exit")
	flagSet.BoolVarP(&f.preflight, "preflight", "c", false, "run the test commands before any work begins")
	flagSet.BoolVarP(&f.spice, "spice", "s", false, "create stacked branches with git-spice")
	flagSet.BoolVarP(&f.push, "push", "p", false, "push after every commit")
	flagSet.BoolVar(&f.fallbackTools, "fallback-tools", false, "pass the configured tool allowlist instead of the project's backend settings")
	flagSet.BoolVar(&f.yolo, "yolo", false, "skip every backend permission check (isolated environments only)")
	flagSet.BoolVar(&f.dryRun, "dry-run", false, "show each unit's status without executing (same as lisa status)")
	flagSet.BoolVar(&f.reviewOnly, "review-only", false, "review the current branch and print the report (same as lisa review)")
	flagSet.BoolVar(&f.conclusion, "conclusion", false, "write the review guide for the current branch (same as lisa conclude)")
}

// overrides maps the flags onto configuration overrides. --yolo wins
// over --fallback-tools.
func (f *runFlags) overrides() config.Overrides {
	overrides := config.Overrides{
		Model:         f.model,
		Effort:        f.effort,
		MaxIterations: f.maxIterations,
		Push:          f.push,
		Spice:         f.spice,
	}
	switch {
	case f.yolo:
		overrides.ToolMode = config.ToolModeUnrestricted
	case f.fallbackTools:
		overrides.ToolMode = config.ToolModeAllowlisted
	}
	return overrides
}

func (f *runFlags) options(units []string) session.Options {
	return session.Options{
		Units:             units,
		SkipVerify:        f.skipVerify,
		SkipPlan:          f.skipPlan,
		Interactive:       f.interactive,
		AlwaysInteractive: f.alwaysInteractive,
		Worktree:          f.worktree,
		Preflight:         f.preflight,
	}
}

func (f *runFlags) validate(units []string) error {
	if len(units) == 0 {
		return errors.New("at least one unit ID is required")
	}
	modes := 0
	for _, set := range []bool{f.dryRun, f.reviewOnly, f.conclusion} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return errors.New("--dry-run, --review-only and --conclusion are mutually exclusive")
	}
	if (f.reviewOnly || f.conclusion) && len(units) != 1 {
		return errors.New("--review-only and --conclusion take exactly one unit ID")
	}
	return nil
}

func runCommand() *cli.Command {
	var flags runFlags
	return &cli.Command{
		Name:    "run",
		Summary: "Plan and implement units (the default when no command is given)",
		Description: `Plan and implement each unit in order.

For every unit lisa checks out the unit's branch (creating one from a
generated slug when needed), recovers progress from the unit's
progress document, the local checkpoint and the branch's commit
trailers, plans when there is no plan yet, and then loops: work on
the first incomplete step, verify it, commit it, save progress. When
every step is done the whole branch is reviewed and a review guide is
attached to the progress document.

The exit status is 1 when any unit did not complete.`,
		Usage: "lisa [run] <unit>... [flags]",
		Flags: func() *pflag.FlagSet {
			flags = runFlags{}
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Run 50 iterations at most", Command: "lisa ENG-123 -n 50"},
			{Description: "Skip planning and use the unit's children", Command: "lisa ENG-123 --skip-plan"},
			{Description: "Fast run without tests or review", Command: "lisa ENG-123 --skip-verify"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := flags.validate(args); err != nil {
				return err
			}
			env, err := openEnvironment(ctx, flags.logFlags, flags.overrides())
			if err != nil {
				return err
			}
			defer env.Close()

			switch {
			case flags.dryRun:
				return showStatus(ctx, env, args, session.StatusRequest{})
			case flags.reviewOnly:
				return reviewOnly(ctx, env, args[0])
			case flags.conclusion:
				return conclude(ctx, env, args[0])
			}

			env.logger.Info("starting",
				"units", args,
				"max_iterations", env.settings.MaxIterations,
				"effort", env.settings.Effort,
				"model", env.settings.Model,
				"tool_mode", env.settings.ToolMode,
				"push", env.settings.Git.Push,
			)
			if flags.skipVerify {
				env.logger.Warn("tests and review disabled")
			}
			checkForUpdate(ctx, env, version.Current().Version)
			s, err := env.session(flags.options(args))
			if err != nil {
				return err
			}
			summary, err := s.Run(ctx)
			if err != nil {
				return err
			}
			return summary.Err()
		},
	}
}

// checkForUpdate logs a notice when a release newer than current is
// out. Lookup failures are only logged at debug level.
func checkForUpdate(ctx context.Context, env *environment, current string) {
	update := env.settings.Update
	if !update.Check {
		return
	}
	checker := &version.UpdateChecker{
		URL:       update.ReleasesURL,
		CachePath: update.CacheFile,
		Interval:  update.Interval,
		Logger:    env.logger,
	}
	if latest, ok := checker.Newer(ctx, current); ok {
		env.logger.Warn("update available",
			"current", current,
			"latest", latest,
			"install", "go install github.com/bureau-foundation/lisa/cmd/lisa@v"+latest,
		)
	}
}
