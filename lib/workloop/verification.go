// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import (
	"context"
	"fmt"
)

func (m *Machine) verifyStep(ctx context.Context, run *RunContext) (State, error) {
	if m.config.SkipVerify {
		m.logger.Info("verification skipped", "step", run.CurrentStep)
		run.Plan.MarkDone(run.CurrentStep)
		run.ClearFailure()
		run.VerifyAttempts = 0
		return StateCommitChanges, nil
	}

	step, _ := run.Plan.Find(run.CurrentStep)
	result, err := m.config.Verifier.VerifyStep(ctx, step, run.Unit.Description)
	if err != nil {
		return StateVerifyStep, fmt.Errorf("workloop: verifying step %d: %w", run.CurrentStep, err)
	}
	run.IterState.TestErrors = result.TestErrors
	run.IterState.ReviewIssues = result.ReviewIssues
	run.IterState.FixesApplied += result.FixAttempts
	run.testsPassed = len(result.TestErrors) == 0

	if result.Passed {
		run.reviewStatus = "APPROVED"
		run.ClearFailure()
		run.VerifyAttempts = 0
		run.Plan.MarkDone(run.CurrentStep)
		m.logger.Info("step verified", "step", run.CurrentStep, "fixes", result.FixAttempts)
		return StateCommitChanges, nil
	}

	run.VerifyAttempts++
	failure := failureFrom(result)
	run.SetFailure(failure)
	if run.VerifyAttempts < MaxVerifyAttempts {
		m.logger.Warn("verification failed, retrying",
			"step", run.CurrentStep,
			"attempt", run.VerifyAttempts,
			"max", MaxVerifyAttempts,
			"kind", failure.Kind,
			"problem", cut(failure.Text, 200),
		)
		return StateExecuteWork, nil
	}

	run.testsPassed = false
	switch failure.Kind {
	case FailureCompletion:
		run.reviewStatus = "skipped (incomplete)"
	case FailureTest:
		run.reviewStatus = "skipped (tests failed)"
	default:
		run.reviewStatus = fmt.Sprintf("NEEDS_FIXES (%d attempts)", result.FixAttempts)
	}
	m.logger.Error("verification attempts exhausted, committing as failed",
		"step", run.CurrentStep,
		"attempts", run.VerifyAttempts,
		"kind", failure.Kind,
	)
	return StateCommitChanges, nil
}
