// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1}, // substitution
		{"abc", "ab", 1},  // deletion
		{"ab", "abc", 1},  // insertion
		{"abc", "bac", 2}, // transposition counts as 2
		{"kitten", "sitting", 3},
		{"status", "stauts", 2},
		{"review", "reveiw", 2},
	}

	for _, test := range tests {
		t.Run(test.a+"→"+test.b, func(t *testing.T) {
			got := levenshtein(test.a, test.b)
			if got != test.want {
				t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
			}
			if reverse := levenshtein(test.b, test.a); reverse != got {
				t.Errorf("levenshtein not symmetric: %d vs %d", got, reverse)
			}
		})
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "status"},
		{Name: "review"},
		{Name: "conclude"},
		{Name: "version"},
		{Name: "login"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"stats", "status"},
		{"reviw", "review"},
		{"concluded", "conclude"},
		{"vrsion", "version"},
		{"zzzzzzzzz", ""},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got := suggestCommand(test.input, commands)
			if got != test.want {
				t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestSuggestFlag(t *testing.T) {
	makeFlagSet := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flagSet.IntP("max-iterations", "n", 0, "")
		flagSet.String("effort", "", "")
		flagSet.Bool("skip-plan", false, "")
		flagSet.BoolP("worktree", "w", false, "")
		return flagSet
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"close typo", []string{"--efort"}, "--effort"},
		{"single dash long name", []string{"-skip-pln"}, "--skip-plan"},
		{"with equals", []string{"--effrt=high"}, "--effort"},
		{"known shorthand skipped", []string{"-n", "3", "--worktre"}, "--worktree"},
		{"nothing close", []string{"--zzzzzzzzz"}, ""},
		{"no flags", []string{"ENG-1"}, ""},
		{"after terminator", []string{"--", "--efort"}, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := suggestFlag(test.args, makeFlagSet())
			if got != test.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
			}
		})
	}
}
