// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bureau-foundation/lisa/lib/plan"
)

// Source names where recovered plan state came from.
type Source string

const (
	SourceDocument Source = "document"
	SourceSnapshot Source = "snapshot"
	SourceNone     Source = "none"
)

// State is everything a resumed run needs.
type State struct {
	Source Source

	// CommentID addresses the existing document; empty when a new one
	// must be created.
	CommentID string

	Iteration   int
	Steps       plan.Plan
	Decisions   []plan.Decision
	Exploration plan.Exploration
	Log         []string
	ReviewGuide string

	// LastTestError and LastReviewIssues are the failure signal left by
	// the newest commit. At most one is set.
	LastTestError    string
	LastReviewIssues string

	History History
}

// HasPlan reports whether a plan was recovered.
func (state State) HasPlan() bool {
	return len(state.Steps) > 0
}

// Inputs are the records Reconcile merges. Nil pointers mean the record
// was absent or unreadable.
type Inputs struct {
	Document *Stored
	Snapshot *Snapshot
	History  History
}

// Reconcile merges the surviving records. The plan, decisions,
// exploration, log and review guide come from the document when it has
// a plan, else from the snapshot. The iteration is the largest any
// record reports. The failure signal comes from the newest commit,
// preferring its test error.
func Reconcile(inputs Inputs) State {
	state := State{Source: SourceNone, History: inputs.History}

	var chosen *Document
	if inputs.Document != nil {
		state.CommentID = inputs.Document.CommentID
		if len(inputs.Document.Document.Steps) > 0 {
			chosen = &inputs.Document.Document
			state.Source = SourceDocument
		}
	}
	if chosen == nil && inputs.Snapshot != nil && len(inputs.Snapshot.Steps) > 0 {
		document := inputs.Snapshot.Document()
		chosen = &document
		state.Source = SourceSnapshot
		if state.CommentID == "" {
			state.CommentID = inputs.Snapshot.CommentID
		}
	}
	if chosen != nil {
		state.Steps = chosen.Steps.Clone()
		state.Decisions = append([]plan.Decision(nil), chosen.Decisions...)
		state.Exploration = chosen.Exploration
		state.Log = append([]string(nil), chosen.Log...)
		state.ReviewGuide = chosen.ReviewGuide
	}

	if inputs.Document != nil {
		state.Iteration = max(state.Iteration, inputs.Document.Document.Iteration)
	}
	if inputs.Snapshot != nil {
		state.Iteration = max(state.Iteration, inputs.Snapshot.Iteration)
	}
	state.Iteration = max(state.Iteration, inputs.History.NewestIteration())

	if inputs.History.LastTestError != "" {
		state.LastTestError = inputs.History.LastTestError
	} else {
		state.LastReviewIssues = inputs.History.LastReviewIssues
	}
	return state
}

// RecoverRequest identifies the branch to recover.
type RecoverRequest struct {
	// UnitKey is the tracker key the document comment hangs off.
	UnitKey string

	// UnitID names the snapshot directory.
	UnitID string

	Branch string
	Base   string
}

// Recover reads all three records and reconciles them. Each read is
// soft: a failure is logged and the record treated as absent.
func Recover(ctx context.Context, store *Store, snapshots *SnapshotStore, reader LogReader, request RecoverRequest, logger *slog.Logger) State {
	if logger == nil {
		logger = slog.Default()
	}
	var inputs Inputs

	if store != nil {
		stored, err := store.Find(ctx, request.UnitKey, request.Branch)
		switch {
		case err == nil:
			inputs.Document = &stored
		case errors.Is(err, ErrNoDocument):
		default:
			logger.Warn("could not read progress document", "branch", request.Branch, "error", err)
		}
	}

	if snapshots != nil {
		snapshot, err := snapshots.Load(request.UnitID, request.Branch)
		switch {
		case err == nil:
			inputs.Snapshot = &snapshot
		case errors.Is(err, ErrNoSnapshot):
		default:
			logger.Warn("ignoring unreadable snapshot", "branch", request.Branch, "error", err)
		}
	}

	if reader != nil {
		history, err := ReadHistory(ctx, reader, request.Base, request.Branch)
		if err != nil {
			logger.Warn("could not read commit history", "branch", request.Branch, "error", err)
		} else {
			inputs.History = history
		}
	}

	state := Reconcile(inputs)
	logger.Debug("recovered state",
		"branch", request.Branch,
		"source", state.Source,
		"iteration", state.Iteration,
		"steps", len(state.Steps),
	)
	return state
}
