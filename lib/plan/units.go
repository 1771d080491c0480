// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package plan

// Unit is a child unit of work as the planner sees it: an identifier,
// a title, and the identifiers of units that block it.
type Unit struct {
	ID        string
	Title     string
	BlockedBy []string
}

// SortByDependencies orders units so each appears after the siblings
// that block it. Blockers outside the input are ignored. Ties keep
// input order. Units caught in a cycle are appended in input order
// after everything that could be ordered.
func SortByDependencies(units []Unit) []Unit {
	index := make(map[string]int, len(units))
	for position, unit := range units {
		index[unit.ID] = position
	}

	inDegree := make([]int, len(units))
	dependents := make([][]int, len(units))
	for position, unit := range units {
		for _, blocker := range unit.BlockedBy {
			blockerPosition, ok := index[blocker]
			if !ok || blockerPosition == position {
				continue
			}
			inDegree[position]++
			dependents[blockerPosition] = append(dependents[blockerPosition], position)
		}
	}

	var ready []int
	for position := range units {
		if inDegree[position] == 0 {
			ready = append(ready, position)
		}
	}

	placed := make([]bool, len(units))
	sorted := make([]Unit, 0, len(units))
	for len(ready) > 0 {
		// Always take the lowest input position so ordering is stable.
		lowest := 0
		for candidate := 1; candidate < len(ready); candidate++ {
			if ready[candidate] < ready[lowest] {
				lowest = candidate
			}
		}
		position := ready[lowest]
		ready = append(ready[:lowest], ready[lowest+1:]...)

		placed[position] = true
		sorted = append(sorted, units[position])
		for _, dependent := range dependents[position] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	for position, unit := range units {
		if !placed[position] {
			sorted = append(sorted, unit)
		}
	}
	return sorted
}

// FromUnits builds a plan with one step per unit, numbered from 1,
// each owned by its unit.
func FromUnits(units []Unit) Plan {
	steps := make(Plan, 0, len(units))
	for position, unit := range units {
		steps = append(steps, Step{
			ID:          position + 1,
			Description: unit.Title,
			Unit:        unit.ID,
		})
	}
	return steps
}
