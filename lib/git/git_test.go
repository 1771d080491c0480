// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// initRepo creates a working tree on branch "main" with one commit and
// a local identity so commits need no global configuration.
func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.name", "Test"},
		{"config", "user.email", "test@test.local"},
		{"config", "commit.gpgsign", "false"},
	} {
		gitCommand(t, dir, args...)
	}
	writeFile(t, dir, "README", "test\n")
	gitCommand(t, dir, "add", "README")
	gitCommand(t, dir, "commit", "-m", "initial")
	return dir
}

func gitCommand(t *testing.T, dir string, args ...string) string {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return string(output)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRepository_Run_InvalidSubcommand(t *testing.T) {
	t.Parallel()

	repo := NewRepository(initRepo(t))
	_, err := repo.Run(context.Background(), "not-a-real-subcommand")
	if err == nil {
		t.Fatal("expected error for invalid subcommand")
	}
	var commandError *CommandError
	if !errors.As(err, &commandError) {
		t.Fatalf("error type = %T, want *CommandError", err)
	}
	if commandError.Stderr == "" {
		t.Error("CommandError.Stderr is empty")
	}
	if Output(err) != commandError.Stderr {
		t.Error("Output() did not return the captured stderr")
	}
}

func TestRepository_Branches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRepository(initRepo(t))

	for _, name := range []string{"eng-7-cache", "eng-7-cache-2", "eng-70-other"} {
		gitCommand(t, repo.Dir(), "branch", name)
	}

	branches, err := repo.ListBranches(ctx, "eng-7-*")
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	want := []string{"eng-7-cache", "eng-7-cache-2"}
	if !reflect.DeepEqual(branches, want) {
		t.Errorf("ListBranches = %v, want %v", branches, want)
	}

	if err := repo.CreateBranch(ctx, "eng-7-cache-3"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	current, err := repo.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if current != "eng-7-cache-3" {
		t.Errorf("CurrentBranch = %q, want eng-7-cache-3", current)
	}

	if err := repo.CheckoutBranch(ctx, "main"); err != nil {
		t.Fatalf("CheckoutBranch: %v", err)
	}
	if err := repo.DeleteBranch(ctx, "eng-7-cache-3"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
}

func TestRepository_ChangedFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := initRepo(t)
	repo := NewRepository(dir)

	files, err := repo.ChangedFiles(ctx)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("clean tree reports %v", files)
	}

	writeFile(t, dir, "README", "changed\n")
	writeFile(t, dir, "lib/new file.go", "package lib\n")

	files, err = repo.ChangedFiles(ctx)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	want := []string{"README", "lib/new file.go"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("ChangedFiles = %q, want %q", files, want)
	}
}

func TestParsePorcelain(t *testing.T) {
	t.Parallel()

	output := " M lib/a.go\x00R  lib/new.go\x00lib/old.go\x00?? notes.md\x00D  gone.go\x00"
	want := []string{"lib/a.go", "lib/new.go", "notes.md", "gone.go"}
	if got := parsePorcelain(output); !reflect.DeepEqual(got, want) {
		t.Errorf("parsePorcelain = %q, want %q", got, want)
	}
}

func TestRepository_CommitAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := initRepo(t)
	repo := NewRepository(dir)
	if err := repo.CreateBranch(ctx, "eng-1-work"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	writeFile(t, dir, "a.go", "package a\n")
	if err := repo.Add(ctx, "a.go"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	message := "feat(lisa): [ENG-1] add a\n\nLisa-Iteration: 1\nLisa-Status: PASS"
	if err := repo.Commit(ctx, message, false); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, dir, "b.go", "package b\n")
	if err := repo.Add(ctx); err != nil {
		t.Fatalf("Add(all): %v", err)
	}
	if err := repo.Commit(ctx, "chore: unrelated", false); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	messages, err := repo.LogMessages(ctx, "(Lisa|Tralph)-Iteration:", "main..eng-1-work")
	if err != nil {
		t.Fatalf("LogMessages: %v", err)
	}
	if len(messages) != 1 || messages[0] != message {
		t.Errorf("LogMessages = %q, want [%q]", messages, message)
	}

	changed, err := repo.ChangedSince(ctx, "main")
	if err != nil {
		t.Fatalf("ChangedSince: %v", err)
	}
	if !reflect.DeepEqual(changed, []string{"a.go", "b.go"}) {
		t.Errorf("ChangedSince = %v", changed)
	}

	log, err := repo.OnelineLog(ctx, "main..HEAD")
	if err != nil {
		t.Fatalf("OnelineLog: %v", err)
	}
	if len(log) != 2 {
		t.Errorf("OnelineLog has %d entries, want 2", len(log))
	}

	head, err := repo.HeadShort(ctx)
	if err != nil {
		t.Fatalf("HeadShort: %v", err)
	}
	if head == "" || !strings.HasPrefix(log[0], head) {
		t.Errorf("HeadShort = %q, newest log line = %q", head, log[0])
	}
}

func TestRepository_CommitHookRejection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := initRepo(t)
	repo := NewRepository(dir)

	hook := filepath.Join(dir, ".git", "hooks", "pre-commit")
	if err := os.MkdirAll(filepath.Dir(hook), 0o755); err != nil {
		t.Fatalf("mkdir hooks: %v", err)
	}
	if err := os.WriteFile(hook, []byte("#!/bin/sh\necho 'lint: trailing whitespace in a.go' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write hook: %v", err)
	}

	writeFile(t, dir, "a.go", "package a \n")
	if err := repo.Add(ctx); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := repo.Commit(ctx, "feat: a", false)
	if err == nil {
		t.Fatal("Commit succeeded despite rejecting hook")
	}
	if !strings.Contains(Output(err), "trailing whitespace") {
		t.Errorf("Output(err) = %q, want hook complaint", Output(err))
	}

	if err := repo.Commit(ctx, "feat: a [no verify]", true); err != nil {
		t.Fatalf("Commit(noVerify): %v", err)
	}
	dirty, err := repo.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges: %v", err)
	}
	if dirty {
		t.Error("tree still dirty after --no-verify commit")
	}
}

func TestRepository_DiffSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := initRepo(t)
	repo := NewRepository(dir)

	summary, err := repo.DiffSummary(ctx)
	if err != nil {
		t.Fatalf("DiffSummary: %v", err)
	}
	if summary != "no changes" {
		t.Errorf("clean DiffSummary = %q", summary)
	}

	writeFile(t, dir, "fresh.go", "package fresh\n")
	summary, err = repo.DiffSummary(ctx)
	if err != nil {
		t.Fatalf("DiffSummary: %v", err)
	}
	if !strings.HasPrefix(summary, "New files:") || !strings.Contains(summary, "fresh.go") {
		t.Errorf("untracked DiffSummary = %q", summary)
	}

	writeFile(t, dir, "README", "edited\n")
	summary, err = repo.DiffSummary(ctx)
	if err != nil {
		t.Fatalf("DiffSummary: %v", err)
	}
	if !strings.Contains(summary, "README") || !strings.Contains(summary, "+edited") {
		t.Errorf("modified DiffSummary = %q", summary)
	}
}

func TestRepository_Worktree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRepository(initRepo(t))
	path := filepath.Join(t.TempDir(), "sessions", "ENG-1_abcd1234")

	if err := repo.AddDetachedWorktree(ctx, path, "HEAD"); err != nil {
		t.Fatalf("AddDetachedWorktree: %v", err)
	}
	if _, err := os.Stat(filepath.Join(path, "README")); err != nil {
		t.Fatalf("worktree missing README: %v", err)
	}
	worktree := NewRepository(path)
	branch, err := worktree.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "" {
		t.Errorf("worktree branch = %q, want detached", branch)
	}

	if err := repo.RemoveWorktree(ctx, path); err != nil {
		t.Fatalf("RemoveWorktree: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("worktree directory still exists: %v", err)
	}
}

func TestBaseSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		branch, prefix, want string
	}{
		{"eng-71-trade-mon-3", "eng-71", "eng-71-trade-mon"},
		{"eng-71-trade-mon", "eng-71", "eng-71-trade-mon"},
		{"eng-71-v2-api", "eng-71", "eng-71-v2-api"},
		{"other-branch-2", "eng-71", "other-branch-2"},
		{"eng-71-7", "eng-71", "eng-71-7"},
	}
	for _, test := range tests {
		if got := BaseSlug(test.branch, test.prefix); got != test.want {
			t.Errorf("BaseSlug(%q, %q) = %q, want %q", test.branch, test.prefix, got, test.want)
		}
	}
}

func TestNextSuffix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		branches []string
		want     int
	}{
		{"only base", []string{"prefix-foo"}, 2},
		{"gap is not reused", []string{"prefix-foo", "prefix-foo-2", "prefix-foo-5"}, 6},
		{"non-numeric suffix ignored", []string{"prefix-foo", "prefix-foo-bar"}, 2},
		{"signed suffix ignored", []string{"prefix-foo", "prefix-foo-+9"}, 2},
		{"empty", nil, 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := NextSuffix(test.branches, "prefix-foo"); got != test.want {
				t.Errorf("NextSuffix(%v) = %d, want %d", test.branches, got, test.want)
			}
		})
	}
}
