// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backendtest provides a scripted backend for tests of code
// that drives lib/backend.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/bureau-foundation/lisa/lib/backend"
)

// Rule answers requests whose prompt contains Match. Respond is called
// with the request and the number of earlier requests this rule
// answered.
type Rule struct {
	Match   string
	Respond func(request backend.Request, call int) (backend.Response, error)
}

// Fake is a Backend that answers from a list of rules, first match
// wins, and records every request. A request no rule matches fails
// the call with an error naming the prompt's first line.
type Fake struct {
	mu       sync.Mutex
	rules    []Rule
	calls    map[int]int
	requests []backend.Request
}

// New returns a Fake with the given rules.
func New(rules ...Rule) *Fake {
	return &Fake{rules: rules, calls: map[int]int{}}
}

// On appends a rule.
func (f *Fake) On(match string, respond func(request backend.Request, call int) (backend.Response, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, Rule{Match: match, Respond: respond})
	return f
}

// Invoke implements backend.Backend.
func (f *Fake) Invoke(ctx context.Context, request backend.Request) (backend.Response, error) {
	if err := ctx.Err(); err != nil {
		return backend.Response{}, err
	}
	f.mu.Lock()
	f.requests = append(f.requests, request)
	var matched *Rule
	var call int
	for index := range f.rules {
		if strings.Contains(request.Prompt, f.rules[index].Match) {
			matched = &f.rules[index]
			call = f.calls[index]
			f.calls[index]++
			break
		}
	}
	f.mu.Unlock()

	if matched == nil {
		firstLine, _, _ := strings.Cut(request.Prompt, "\n")
		return backend.Response{}, fmt.Errorf("backendtest: no rule for prompt %q", firstLine)
	}
	return matched.Respond(request, call)
}

// Requests returns every request received, in order.
func (f *Fake) Requests() []backend.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Request(nil), f.requests...)
}

// Count returns how many requests contained match.
func (f *Fake) Count(match string) int {
	count := 0
	for _, request := range f.Requests() {
		if strings.Contains(request.Prompt, match) {
			count++
		}
	}
	return count
}

// JSON answers with value as structured output.
func JSON(value any) func(backend.Request, int) (backend.Response, error) {
	data, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("backendtest: encoding canned response: %v", err))
	}
	return func(backend.Request, int) (backend.Response, error) {
		return backend.Response{Structured: data}, nil
	}
}

// Text answers with plain text.
func Text(text string) func(backend.Request, int) (backend.Response, error) {
	return func(backend.Request, int) (backend.Response, error) {
		return backend.Response{Text: text}, nil
	}
}

// Sequence answers the n-th matching call with responders[n], repeating
// the last responder once the list is exhausted.
func Sequence(responders ...func(backend.Request, int) (backend.Response, error)) func(backend.Request, int) (backend.Response, error) {
	return func(request backend.Request, call int) (backend.Response, error) {
		index := min(call, len(responders)-1)
		return responders[index](request, call)
	}
}
