// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/lisa/lib/tracker"
)

// ErrNoDocument is returned when an issue has no progress document for
// the branch.
var ErrNoDocument = errors.New("progress: no document for branch")

// CommentAPI is the part of the tracker client the store needs.
type CommentAPI interface {
	ListComments(ctx context.Context, issueKey string) ([]tracker.Comment, error)
	CreateComment(ctx context.Context, issueKey, body string) (string, error)
	UpdateComment(ctx context.Context, commentID, body string) error
}

// Stored is a document together with the comment that holds it.
type Stored struct {
	CommentID string
	Body      string
	Document  Document
}

// Store reads and writes progress documents as issue comments.
type Store struct {
	comments CommentAPI
	logger   *slog.Logger
}

// NewStore creates a store over comments. A nil logger uses
// slog.Default().
func NewStore(comments CommentAPI, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{comments: comments, logger: logger}
}

// Find returns the first comment on the issue whose body starts with a
// recognized header for branch. Returns ErrNoDocument when none does.
func (store *Store) Find(ctx context.Context, issueKey, branch string) (Stored, error) {
	comments, err := store.comments.ListComments(ctx, issueKey)
	if err != nil {
		return Stored{}, fmt.Errorf("progress: reading comments: %w", err)
	}
	headers := Headers(branch)
	for _, comment := range comments {
		for _, header := range headers {
			if strings.HasPrefix(comment.Body, header) {
				document, _ := Parse(comment.Body)
				return Stored{CommentID: comment.ID, Body: comment.Body, Document: document}, nil
			}
		}
	}
	return Stored{}, ErrNoDocument
}

// Save writes document, updating commentID when set and creating a new
// comment otherwise. Returns the comment ID.
func (store *Store) Save(ctx context.Context, issueKey, commentID string, document Document) (string, error) {
	body := document.Render()
	if commentID != "" {
		if err := store.comments.UpdateComment(ctx, commentID, body); err != nil {
			return commentID, fmt.Errorf("progress: updating document: %w", err)
		}
		return commentID, nil
	}
	id, err := store.comments.CreateComment(ctx, issueKey, body)
	if err != nil {
		return "", fmt.Errorf("progress: creating document: %w", err)
	}
	store.logger.Info("created progress document", "branch", document.Branch, "comment", id)
	return id, nil
}

// AttachReviewGuide appends guide to the branch's document, replacing
// any guide already there. The rest of the body is left as written.
func (store *Store) AttachReviewGuide(ctx context.Context, issueKey, branch, guide string) error {
	stored, err := store.Find(ctx, issueKey, branch)
	if err != nil {
		return err
	}
	body := WithReviewGuide(stored.Body, guide)
	if err := store.comments.UpdateComment(ctx, stored.CommentID, body); err != nil {
		return fmt.Errorf("progress: attaching review guide: %w", err)
	}
	return nil
}

// WithReviewGuide returns body with its review guide section replaced
// by guide, or guide appended when body has none.
func WithReviewGuide(body, guide string) string {
	if before, _, found := strings.Cut(body, reviewGuideHeading); found {
		body = before
	}
	return strings.TrimRight(body, " \n") + "\n\n" + strings.TrimSpace(guide) + "\n"
}
