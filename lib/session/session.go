// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/config"
	"github.com/bureau-foundation/lisa/lib/decisionui"
	"github.com/bureau-foundation/lisa/lib/git"
	"github.com/bureau-foundation/lisa/lib/plan"
	"github.com/bureau-foundation/lisa/lib/progress"
	"github.com/bureau-foundation/lisa/lib/runlock"
	"github.com/bureau-foundation/lisa/lib/tracker"
	"github.com/bureau-foundation/lisa/lib/verify"
	"github.com/bureau-foundation/lisa/lib/workloop"
)

// ErrUnitsFailed is wrapped by [Summary.Err] when any unit did not
// complete.
var ErrUnitsFailed = errors.New("session: units failed")

// ErrNoPlan is returned for a unit that has neither a plan nor child
// units to derive one from.
var ErrNoPlan = errors.New("session: no plan steps")

// Tracker is the tracker surface a session needs. *tracker.Client
// implements it.
type Tracker interface {
	FetchUnit(ctx context.Context, id string) (tracker.Unit, error)
	FetchChild(ctx context.Context, id string) (tracker.ChildDetails, error)
	progress.CommentAPI
}

// Editor reviews decision records with the operator. *decisionui.Editor
// implements it.
type Editor interface {
	Review(ctx context.Context, title string, decisions []plan.Decision) (decisionui.Result, error)
	workloop.DecisionEditor
}

// BackendFactory returns the generation backend for a working
// directory.
type BackendFactory func(dir string) (backend.Backend, error)

// Options are the per-invocation switches.
type Options struct {
	// Units are processed in order.
	Units []string

	SkipVerify bool

	// SkipPlan uses the child units as the plan instead of asking the
	// backend for one.
	SkipPlan bool

	// Interactive shows planning decisions to the operator.
	// AlwaysInteractive shows work decisions as well.
	Interactive       bool
	AlwaysInteractive bool

	// Worktree runs the session in a scratch worktree.
	Worktree bool

	// Preflight runs every test command before any work.
	Preflight bool
}

// Config holds a session's collaborators.
type Config struct {
	Settings *config.Config
	Options  Options
	Tracker  Tracker
	Backend  BackendFactory

	// Meter accumulates usage across the session. Optional.
	Meter *backend.Meter

	// Dir is the repository the session starts in.
	Dir string

	// Runner overrides the shell runner of the verification engine.
	// Optional.
	Runner verify.Runner

	// Editor is required when either interactive option is set.
	Editor Editor

	// Display receives rendered markdown and diffs.
	Display workloop.Display

	Clock  clock.Clock
	Logger *slog.Logger
}

// Session runs units.
type Session struct {
	config    Config
	settings  *config.Config
	clock     clock.Clock
	logger    *slog.Logger
	store     *progress.Store
	snapshots *progress.SnapshotStore
	started   time.Time
}

// New validates config and returns a Session.
func New(config Config) (*Session, error) {
	switch {
	case config.Settings == nil:
		return nil, errors.New("session: settings are required")
	case config.Tracker == nil:
		return nil, errors.New("session: tracker is required")
	case config.Backend == nil:
		return nil, errors.New("session: backend factory is required")
	case config.Display == nil:
		return nil, errors.New("session: display is required")
	case config.Dir == "":
		return nil, errors.New("session: directory is required")
	case (config.Options.Interactive || config.Options.AlwaysInteractive) && config.Editor == nil:
		return nil, errors.New("session: interactive mode needs a decision editor")
	}
	sessionClock := config.Clock
	if sessionClock == nil {
		sessionClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run", uuid.NewString()[:8])
	return &Session{
		config:    config,
		settings:  config.Settings,
		clock:     sessionClock,
		logger:    logger,
		store:     progress.NewStore(config.Tracker, logger),
		snapshots: progress.NewSnapshotStore(filepath.Join(config.Dir, progress.SnapshotDir), logger),
	}, nil
}

// Summary reports which units completed.
type Summary struct {
	Completed []string
	Failed    []string
	Elapsed   time.Duration
	Usage     backend.Usage
}

// Err returns nil when every unit completed, and otherwise an error
// wrapping ErrUnitsFailed that distinguishes partial from total
// failure.
func (s Summary) Err() error {
	if len(s.Failed) == 0 {
		return nil
	}
	total := len(s.Completed) + len(s.Failed)
	if len(s.Completed) == 0 {
		return fmt.Errorf("%w: all %d failed (%s)", ErrUnitsFailed, total, strings.Join(s.Failed, ", "))
	}
	return fmt.Errorf("%w: completed %d/%d, failed %s", ErrUnitsFailed, len(s.Completed), total, strings.Join(s.Failed, ", "))
}

// Run processes every unit. The returned error is a fatal one that
// stopped the session; units that merely failed are listed in the
// summary.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	s.started = s.clock.Now()
	summary := Summary{}
	if len(s.config.Options.Units) == 0 {
		return summary, errors.New("session: no units given")
	}
	if len(s.config.Options.Units) > 1 {
		s.logger.Info("running units in series", "units", strings.Join(s.config.Options.Units, " → "))
	}

	work, cleanup, err := s.prepare(ctx)
	if err != nil {
		return summary, err
	}
	defer cleanup()

	for index, id := range s.config.Options.Units {
		if len(s.config.Options.Units) > 1 {
			s.logger.Info("starting unit", "position", fmt.Sprintf("%d/%d", index+1, len(s.config.Options.Units)), "unit", id)
		}
		completed, err := s.runUnit(ctx, work, id)
		if err != nil && !errors.Is(err, ErrNoPlan) {
			summary.Failed = append(summary.Failed, id)
			s.finish(&summary)
			return summary, fmt.Errorf("%s: %w", id, err)
		}
		if err != nil {
			s.logger.Error("unit has nothing to do", "unit", id, "error", err)
		}
		if completed {
			summary.Completed = append(summary.Completed, id)
		} else {
			summary.Failed = append(summary.Failed, id)
		}
	}
	s.finish(&summary)
	return summary, nil
}

func (s *Session) finish(summary *Summary) {
	summary.Elapsed = clock.Since(s.clock, s.started)
	if s.config.Meter != nil {
		summary.Usage = s.config.Meter.Total()
	}
	attributes := []any{
		"completed", len(summary.Completed),
		"failed", len(summary.Failed),
		"elapsed", summary.Elapsed.Round(time.Second),
	}
	if s.config.Meter != nil {
		attributes = append(attributes, "usage", summary.Usage.String())
	}
	switch {
	case len(summary.Failed) == 0:
		s.logger.Info("session complete", attributes...)
	case len(summary.Completed) == 0:
		s.logger.Error("every unit failed", append(attributes, "units", strings.Join(summary.Failed, ", "))...)
	default:
		s.logger.Warn("some units failed", append(attributes, "units", strings.Join(summary.Failed, ", "))...)
	}
}

// prepare sets up the working tree the units run in and returns a
// cleanup that undoes it. In worktree mode that is a fresh worktree
// with setup and preflight done; otherwise the repository itself,
// locked against a second run.
func (s *Session) prepare(ctx context.Context) (*workspace, func(), error) {
	if !s.config.Options.Worktree {
		lock, err := runlock.AcquireRepo(s.config.Dir)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if err := lock.Release(); err != nil {
				s.logger.Warn("releasing run lock", "error", err)
			}
		}
		work, err := s.workspace(s.config.Dir)
		if err != nil {
			release()
			return nil, nil, err
		}
		if s.config.Options.Preflight {
			if err := s.preflight(ctx, work); err != nil {
				release()
				return nil, nil, err
			}
		}
		return work, release, nil
	}

	origin := git.NewRepository(s.config.Dir)
	name := strings.Join(s.config.Options.Units, "_") + "_" + uuid.NewString()[:8]
	path := filepath.Join(s.settings.Worktree.Root, name)
	if err := origin.AddDetachedWorktree(ctx, path, "HEAD"); err != nil {
		return nil, nil, fmt.Errorf("creating session worktree: %w", err)
	}
	s.logger.Info("created session worktree", "path", path)

	cleanup := func() {
		// The run context may already be cancelled by a signal; the
		// worktree still has to go.
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := origin.RemoveWorktree(removeCtx, path); err != nil {
			s.logger.Warn("removing session worktree", "path", path, "error", err)
			return
		}
		s.logger.Info("removed session worktree", "path", path)
	}

	work, err := s.workspace(path)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// Some test suites misbehave on a detached HEAD.
	preflightBranch := "lisa-preflight-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if err := work.repo.CreateBranch(ctx, preflightBranch); err != nil {
		s.logger.Warn("could not create preflight branch", "error", err)
	} else {
		work.preflightBranch = preflightBranch
	}

	s.logger.Info("running setup")
	if err := work.engine.RunSetup(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("setup failed: %w", err)
	}
	if s.config.Options.Preflight {
		if err := s.preflight(ctx, work); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return work, cleanup, nil
}

func (s *Session) preflight(ctx context.Context, work *workspace) error {
	s.logger.Info("running preflight checks")
	if err := work.engine.RunPreflight(ctx); err != nil {
		return fmt.Errorf("preflight failed, fix the codebase before running lisa: %w", err)
	}
	s.logger.Info("preflight passed")
	return nil
}
