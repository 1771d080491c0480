// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workloop

import "fmt"

// State is a work-loop state.
type State int

const (
	StateSelectStep State = iota
	StateExecuteWork
	StateHandleDecisions
	StateCheckCompletion
	StateVerifyStep
	StateCommitChanges
	StateSaveState
	StateAllDone
	StateMaxIterations

	// stateCount is the number of states. Keep it last.
	stateCount
)

var stateNames = [stateCount]string{
	StateSelectStep:      "select_step",
	StateExecuteWork:     "execute_work",
	StateHandleDecisions: "handle_decisions",
	StateCheckCompletion: "check_completion",
	StateVerifyStep:      "verify_step",
	StateCommitChanges:   "commit_changes",
	StateSaveState:       "save_state",
	StateAllDone:         "all_done",
	StateMaxIterations:   "max_iterations",
}

func (s State) String() string {
	if s < 0 || s >= stateCount {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether the loop stops in s.
func (s State) Terminal() bool {
	return s == StateAllDone || s == StateMaxIterations
}

// Outcome is how a run ended.
type Outcome int

const (
	// OutcomeDone means every step is done and the final phase ran.
	OutcomeDone Outcome = iota

	// OutcomeExhausted means the iteration budget ran out first.
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}
