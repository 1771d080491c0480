// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"regexp"
	"strings"

	"github.com/bureau-foundation/lisa/lib/config"
)

var bracePattern = regexp.MustCompile(`\{([^}]+)\}`)

// ExpandBraces expands "{a,b}" groups into one pattern per
// alternative. Patterns without a group are returned unchanged.
//
//	ExpandBraces("src/**/*.{ts,tsx}") = ["src/**/*.ts", "src/**/*.tsx"]
func ExpandBraces(pattern string) []string {
	location := bracePattern.FindStringSubmatchIndex(pattern)
	if location == nil {
		return []string{pattern}
	}
	prefix, suffix := pattern[:location[0]], pattern[location[1]:]
	var expanded []string
	for _, alternative := range strings.Split(pattern[location[2]:location[3]], ",") {
		expanded = append(expanded, ExpandBraces(prefix+alternative+suffix)...)
	}
	return expanded
}

// Match reports whether name matches the shell-style pattern. "*"
// matches any run of characters including "/", "?" matches one
// character, and "[...]" is a character class ("[!...]" negates).
func Match(pattern, name string) bool {
	compiled, err := regexp.Compile(translateGlob(pattern))
	if err != nil {
		return false
	}
	return compiled.MatchString(name)
}

func translateGlob(pattern string) string {
	var builder strings.Builder
	builder.WriteString(`^(?s:`)
	for index := 0; index < len(pattern); index++ {
		char := pattern[index]
		switch char {
		case '*':
			builder.WriteString(`.*`)
		case '?':
			builder.WriteString(`.`)
		case '[':
			end := strings.IndexByte(pattern[index+1:], ']')
			if end < 0 {
				builder.WriteString(`\[`)
				continue
			}
			class := pattern[index+1 : index+1+end]
			if class == "" || class == "!" {
				// "[]" and "[!]" are literal in this dialect.
				builder.WriteString(regexp.QuoteMeta(pattern[index : index+2+end]))
				index += end + 1
				continue
			}
			builder.WriteByte('[')
			if class[0] == '!' {
				builder.WriteByte('^')
				class = class[1:]
			} else if class[0] == '^' {
				builder.WriteByte('\\')
			}
			builder.WriteString(strings.ReplaceAll(class, `\`, `\\`))
			builder.WriteByte(']')
			index += end + 1
		default:
			builder.WriteString(regexp.QuoteMeta(pattern[index : index+1]))
		}
	}
	builder.WriteString(`)$`)
	return builder.String()
}

// ShouldRun reports whether a command gated by paths should run for
// the changed files. No paths means always.
func ShouldRun(paths, changed []string) bool {
	if len(paths) == 0 {
		return true
	}
	for _, pattern := range paths {
		for _, expanded := range ExpandBraces(pattern) {
			for _, file := range changed {
				if Match(expanded, file) {
					return true
				}
			}
		}
	}
	return false
}

// Select returns the commands that should run for the changed files,
// in declared order.
func Select(commands []config.Command, changed []string) []config.Command {
	var selected []config.Command
	for _, command := range commands {
		if ShouldRun(command.Paths, changed) {
			selected = append(selected, command)
		}
	}
	return selected
}
