// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/lisa/lib/progress"
)

func (m *Machine) saveState(ctx context.Context, run *RunContext) (State, error) {
	var entry string
	if run.stepDone {
		mark := "✓"
		if !run.testsPassed {
			mark = "✗"
		}
		entry = fmt.Sprintf("Iter %d - step %d %s (%s)", run.Iteration(), run.CurrentStep, mark, run.reviewStatus)
	} else {
		entry = fmt.Sprintf("Iter %d - step %d in progress", run.Iteration(), run.CurrentStep)
	}

	now := m.clock.Now()
	document := run.document(now)
	document.AddLog(entry, now)
	run.Log = document.Log
	m.persist(ctx, run, document)
	return StateSelectStep, nil
}

// persist writes the progress document and then the local checkpoint.
// Both are best effort.
func (m *Machine) persist(ctx context.Context, run *RunContext, document progress.Document) {
	if m.config.Store != nil && run.Unit.Key != "" {
		commentID, err := m.config.Store.Save(ctx, run.Unit.Key, run.CommentID, document)
		if err != nil {
			m.logger.Warn("saving progress document", "unit", run.Unit.ID, "error", err)
		} else {
			run.CommentID = commentID
		}
	}
	if m.config.Snapshots != nil {
		snapshot := progress.SnapshotOf(run.Unit.ID, run.CommentID, document, document.LastRun)
		if err := m.config.Snapshots.Save(snapshot); err != nil {
			m.logger.Warn("saving checkpoint", "unit", run.Unit.ID, "error", err)
		}
	}
}
