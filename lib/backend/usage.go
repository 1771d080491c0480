// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"fmt"
	"sync"
)

// Usage is token consumption and cost for one or more calls.
type Usage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheReadTokens     int     `json:"cache_read_input_tokens"`
	CacheCreationTokens int     `json:"cache_creation_input_tokens"`
	CostUSD             float64 `json:"total_cost_usd"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens + other.InputTokens,
		OutputTokens:        u.OutputTokens + other.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens + other.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens + other.CacheCreationTokens,
		CostUSD:             u.CostUSD + other.CostUSD,
	}
}

// Tokens is every token counted, cached or not.
func (u Usage) Tokens() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

func (u Usage) String() string {
	return fmt.Sprintf("%s in, %s out, %s cached, $%.2f",
		compact(u.InputTokens+u.CacheCreationTokens), compact(u.OutputTokens), compact(u.CacheReadTokens), u.CostUSD)
}

func compact(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// Meter accumulates usage for the current iteration and for the whole
// run. Safe for concurrent use.
type Meter struct {
	mu        sync.Mutex
	iteration Usage
	total     Usage
}

// Record adds one call's usage.
func (m *Meter) Record(usage Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iteration = m.iteration.Add(usage)
	m.total = m.total.Add(usage)
}

// ResetIteration starts a new iteration.
func (m *Meter) ResetIteration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iteration = Usage{}
}

// Iteration returns usage since the last ResetIteration.
func (m *Meter) Iteration() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iteration
}

// Total returns usage since the meter was created.
func (m *Meter) Total() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
