// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/git"
	"github.com/bureau-foundation/lisa/lib/verify"
	"github.com/bureau-foundation/lisa/lib/workloop"
)

// workspace is a working tree and the collaborators bound to it.
type workspace struct {
	dir     string
	repo    *git.Repository
	backend backend.Backend
	engine  *verify.Engine

	// preflightBranch is the temporary branch a fresh worktree starts
	// on. It is deleted once a unit branch is checked out.
	preflightBranch string
}

func (s *Session) workspace(dir string) (*workspace, error) {
	generation, err := s.config.Backend(dir)
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}
	repo := git.NewRepository(dir)
	engine, err := verify.New(verify.Config{
		Backend:   generation,
		Prompts:   s.settings,
		Workspace: repo,
		Runner:    s.config.Runner,
		Clock:     s.clock,
		Dir:       dir,
		Tests:     s.settings.Tests,
		Format:    s.settings.Format,
		Setup:     s.settings.Setup,
		Coverage:  s.settings.Coverage,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}
	return &workspace{dir: dir, repo: repo, backend: generation, engine: engine}, nil
}

// machine returns a work loop bound to work, logging with logger.
func (s *Session) machine(work *workspace, logger *slog.Logger) (*workloop.Machine, error) {
	options := s.config.Options
	return workloop.New(workloop.Config{
		Backend:       work.backend,
		Prompts:       s.settings,
		Verifier:      work.engine,
		VCS:           work.repo,
		Store:         s.store,
		Snapshots:     s.snapshots,
		Children:      s.config.Tracker,
		Editor:        s.config.Editor,
		Interactive:   options.AlwaysInteractive,
		Display:       s.config.Display,
		Meter:         s.config.Meter,
		Clock:         s.clock,
		Logger:        logger,
		BaseBranch:    s.settings.Git.BaseBranch,
		MaxIterations: s.settings.MaxIterations,
		SkipVerify:    options.SkipVerify,
		AllowNoVerify: s.settings.Git.AllowNoVerify,
		Push:          s.settings.Git.Push,
	})
}
