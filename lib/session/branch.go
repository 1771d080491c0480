// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/lisa/lib/backend"
	"github.com/bureau-foundation/lisa/lib/git"
	"github.com/bureau-foundation/lisa/lib/tracker"
)

// fallbackSlug is used when the backend produces nothing usable.
const fallbackSlug = "work"

// slugDescriptionLimit bounds the description sent for a slug.
const slugDescriptionLimit = 500

// branchPrefix is the lowercased unit identifier every branch of the
// unit starts with.
func branchPrefix(unitID string) string {
	return strings.ToLower(unitID)
}

// onUnitBranch reports whether branch belongs to the unit.
func onUnitBranch(branch, unitID string) bool {
	return strings.HasPrefix(branch, branchPrefix(unitID)+"-")
}

// branchName decides the branch a new run of unit should use. When the
// current branch already belongs to the unit it is returned with
// current=true. Otherwise the name continues the suffix sequence of
// the unit's existing branches, or starts a new one from a generated
// slug.
func (s *Session) branchName(ctx context.Context, work *workspace, unit tracker.Unit) (name string, current bool, err error) {
	prefix := branchPrefix(unit.ID)
	branch, err := work.repo.CurrentBranch(ctx)
	if err != nil {
		return "", false, err
	}
	if onUnitBranch(branch, unit.ID) {
		return branch, true, nil
	}
	existing, err := work.repo.ListBranches(ctx, prefix+"-*")
	if err != nil {
		return "", false, err
	}
	if len(existing) > 0 {
		return nextBranch(existing, existing[0], prefix), false, nil
	}
	maxLength := s.settings.BranchLength - len(prefix) - 1
	slug := s.slug(ctx, work, unit, maxLength)
	return prefix + "-" + slug, false, nil
}

// nextBranch continues the suffix sequence of base among existing.
func nextBranch(existing []string, branch, prefix string) string {
	base := git.BaseSlug(branch, prefix)
	return fmt.Sprintf("%s-%d", base, git.NextSuffix(existing, base))
}

// checkoutBranch puts work on the unit's branch and returns its name.
func (s *Session) checkoutBranch(ctx context.Context, work *workspace, unit tracker.Unit, logger *slog.Logger) (string, error) {
	name, current, err := s.branchName(ctx, work, unit)
	if err != nil {
		return "", fmt.Errorf("choosing branch: %w", err)
	}

	switch {
	case current && s.config.Options.Worktree:
		// A fresh worktree is never on a unit branch, but a reused one
		// may be; never continue someone else's branch there.
		existing, err := work.repo.ListBranches(ctx, branchPrefix(unit.ID)+"-*")
		if err != nil {
			return "", err
		}
		name = nextBranch(existing, name, branchPrefix(unit.ID))
	case current:
		logger.Info("already on unit branch", "branch", name)
		if s.settings.Git.Spice {
			if err := work.repo.TrackStackedBranch(ctx); err != nil {
				logger.Warn("git-spice track failed", "error", err)
			}
		}
		return name, nil
	}

	switch {
	case s.settings.Git.Spice:
		err = work.repo.CreateStackedBranch(ctx, name)
	case s.config.Options.Worktree:
		err = work.repo.CheckoutBranch(ctx, name)
	default:
		err = work.repo.CreateBranch(ctx, name)
	}
	if err != nil {
		return "", fmt.Errorf("creating branch %s: %w", name, err)
	}
	logger.Info("created branch", "branch", name)

	if work.preflightBranch != "" {
		if err := work.repo.DeleteBranch(ctx, work.preflightBranch); err != nil {
			logger.Warn("could not delete preflight branch", "branch", work.preflightBranch, "error", err)
		}
		work.preflightBranch = ""
	}
	return name, nil
}

type slugAnswer struct {
	Slug string `json:"slug"`
}

// slug asks the light model for a branch slug of at most maxLength
// characters. Failures fall back to a fixed slug.
func (s *Session) slug(ctx context.Context, work *workspace, unit tracker.Unit, maxLength int) string {
	description := unit.Description
	if description == "" {
		description = "N/A"
	}
	if runes := []rune(description); len(runes) > slugDescriptionLimit {
		description = string(runes[:slugDescriptionLimit])
	}
	prompt, err := s.settings.Render("slug", map[string]any{
		"MaxLength":   maxLength,
		"Title":       unit.Title,
		"Description": description,
	})
	if err != nil {
		s.logger.Warn("rendering slug prompt", "error", err)
		return fallbackSlug
	}
	request := backend.Request{Prompt: prompt, Light: true, Effort: backend.EffortQuick}
	if schema, err := s.settings.Schema("slug"); err == nil {
		request.Schema = schema
	}
	response, err := work.backend.Invoke(ctx, request)
	if err != nil {
		s.logger.Warn("slug generation failed", "error", err)
		return fallbackSlug
	}
	raw := response.Text
	if answer, err := backend.Decode[slugAnswer](response); err == nil {
		raw = answer.Slug
	}
	return cleanSlug(raw, maxLength)
}

// cleanSlug lowercases raw, drops every character that is not a
// letter, digit or hyphen, trims hyphens and cuts to maxLength.
func cleanSlug(raw string, maxLength int) string {
	var builder strings.Builder
	for _, char := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case char >= 'a' && char <= 'z', char >= '0' && char <= '9', char == '-':
			builder.WriteRune(char)
		case char == ' ' || char == '_':
			builder.WriteByte('-')
		}
	}
	slug := builder.String()
	if maxLength > 0 && len(slug) > maxLength {
		slug = slug[:maxLength]
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return fallbackSlug
	}
	return slug
}
