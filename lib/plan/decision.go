// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"fmt"
	"strings"
)

// ManualPrefix marks a decision record that stands for an action only
// an operator can take.
const ManualPrefix = "MANUAL: "

// BlockedRationale is the rationale attached to records created from a
// blocked work response.
const BlockedRationale = "Blocked - requires manual action"

// PlanningNamespace prefixes decision IDs made during planning. Work
// decisions use the iteration number instead.
const PlanningNamespace = "P"

// Decision is an assumption or choice the backend made, with whether
// it was accepted. IDs are namespaced: "P.2" is the second planning
// decision, "3.1" is the first decision made in iteration 3.
type Decision struct {
	ID        string `json:"id"`
	Selected  bool   `json:"selected"`
	Statement string `json:"statement"`
	Rationale string `json:"rationale,omitempty"`
}

// IsPlanning reports whether the record came from the planning phase.
func (d Decision) IsPlanning() bool {
	return strings.HasPrefix(d.ID, PlanningNamespace+".")
}

// IsManual reports whether the record stands for an operator action.
func (d Decision) IsManual() bool {
	return strings.HasPrefix(d.Statement, ManualPrefix)
}

// Relabel assigns sequential IDs within namespace, starting at 1.
// The input is not modified.
func Relabel(decisions []Decision, namespace string) []Decision {
	return RelabelFrom(decisions, namespace, 1)
}

// RelabelFrom assigns sequential IDs within namespace starting at
// first, for records joining a namespace that already has entries.
func RelabelFrom(decisions []Decision, namespace string, first int) []Decision {
	relabeled := make([]Decision, len(decisions))
	for index, decision := range decisions {
		decision.ID = fmt.Sprintf("%s.%d", namespace, first+index)
		relabeled[index] = decision
	}
	return relabeled
}

// Blocked returns the manual-action record for a blocked reason, with
// an ID in the given namespace at position sequence.
func Blocked(namespace string, sequence int, reason string) Decision {
	return Decision{
		ID:        fmt.Sprintf("%s.%d", namespace, sequence),
		Selected:  false,
		Statement: ManualPrefix + reason,
		Rationale: BlockedRationale,
	}
}

// Selected returns the records that were accepted.
func Selected(decisions []Decision) []Decision {
	var selected []Decision
	for _, decision := range decisions {
		if decision.Selected {
			selected = append(selected, decision)
		}
	}
	return selected
}

// Manual returns the records that need an operator.
func Manual(decisions []Decision) []Decision {
	var manual []Decision
	for _, decision := range decisions {
		if decision.IsManual() {
			manual = append(manual, decision)
		}
	}
	return manual
}

// Context renders selected decisions as a prompt section.
func Context(decisions []Decision) string {
	var builder strings.Builder
	for _, decision := range Selected(decisions) {
		fmt.Fprintf(&builder, "- %s. %s", decision.ID, decision.Statement)
		if decision.Rationale != "" {
			fmt.Fprintf(&builder, " (%s)", decision.Rationale)
		}
		builder.WriteByte('\n')
	}
	return strings.TrimRight(builder.String(), "\n")
}
