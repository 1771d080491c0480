// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"fmt"
)

// Comment is an issue comment.
type Comment struct {
	ID   string
	Body string
}

const listCommentsQuery = `query($id: String!) {
  issue(id: $id) {
    comments {
      nodes {
        id
        body
      }
    }
  }
}`

// ListComments returns the comments on the issue with the given key.
func (client *Client) ListComments(ctx context.Context, issueKey string) ([]Comment, error) {
	var data struct {
		Issue *struct {
			Comments struct {
				Nodes []struct {
					ID   string `json:"id"`
					Body string `json:"body"`
				} `json:"nodes"`
			} `json:"comments"`
		} `json:"issue"`
	}
	if err := client.do(ctx, listCommentsQuery, map[string]any{"id": issueKey}, &data); err != nil {
		return nil, fmt.Errorf("listing comments on %s: %w", issueKey, err)
	}
	if data.Issue == nil {
		return nil, fmt.Errorf("listing comments on %s: %w", issueKey, ErrNotFound)
	}
	comments := make([]Comment, 0, len(data.Issue.Comments.Nodes))
	for _, node := range data.Issue.Comments.Nodes {
		comments = append(comments, Comment{ID: node.ID, Body: node.Body})
	}
	return comments, nil
}

const createCommentMutation = `mutation($issueId: String!, $body: String!) {
  commentCreate(input: { issueId: $issueId, body: $body }) {
    success
    comment { id }
  }
}`

// CreateComment posts a comment and returns its ID.
func (client *Client) CreateComment(ctx context.Context, issueKey, body string) (string, error) {
	var data struct {
		CommentCreate struct {
			Success bool `json:"success"`
			Comment *struct {
				ID string `json:"id"`
			} `json:"comment"`
		} `json:"commentCreate"`
	}
	if err := client.do(ctx, createCommentMutation, map[string]any{"issueId": issueKey, "body": body}, &data); err != nil {
		return "", fmt.Errorf("creating comment on %s: %w", issueKey, err)
	}
	if !data.CommentCreate.Success || data.CommentCreate.Comment == nil {
		return "", fmt.Errorf("creating comment on %s: tracker reported failure", issueKey)
	}
	return data.CommentCreate.Comment.ID, nil
}

const updateCommentMutation = `mutation($id: String!, $body: String!) {
  commentUpdate(id: $id, input: { body: $body }) {
    success
  }
}`

// UpdateComment replaces the body of an existing comment.
func (client *Client) UpdateComment(ctx context.Context, commentID, body string) error {
	var data struct {
		CommentUpdate struct {
			Success bool `json:"success"`
		} `json:"commentUpdate"`
	}
	if err := client.do(ctx, updateCommentMutation, map[string]any{"id": commentID, "body": body}, &data); err != nil {
		return fmt.Errorf("updating comment %s: %w", commentID, err)
	}
	if !data.CommentUpdate.Success {
		return fmt.Errorf("updating comment %s: tracker reported failure", commentID)
	}
	return nil
}
