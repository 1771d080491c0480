// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotAuthenticated is returned when neither an API key nor a stored
// OAuth token is available.
var ErrNotAuthenticated = errors.New("tracker: not authenticated (run `lisa login` or set LINEAR_API_KEY)")

// ErrNotFound is returned when a query succeeds but the requested
// issue is absent.
var ErrNotFound = errors.New("tracker: not found")

// APIError is a non-2xx HTTP response from the tracker.
type APIError struct {
	StatusCode int
	Message    string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("tracker: HTTP %d: %s", err.StatusCode, err.Message)
}

// GraphQLError is a response whose "errors" array was non-empty.
type GraphQLError struct {
	Messages []string
}

func (err *GraphQLError) Error() string {
	return "tracker: GraphQL: " + strings.Join(err.Messages, "; ")
}

// IsNotFound reports whether err means the requested entity does not
// exist: an HTTP 404, or a GraphQL error naming a missing entity.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiError *APIError
	if errors.As(err, &apiError) {
		return apiError.StatusCode == 404
	}
	var graphqlError *GraphQLError
	if errors.As(err, &graphqlError) {
		for _, message := range graphqlError.Messages {
			if strings.Contains(strings.ToLower(message), "not found") {
				return true
			}
		}
	}
	return false
}

// IsUnauthorized reports whether err is an HTTP 401 or 403.
func IsUnauthorized(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && (apiError.StatusCode == 401 || apiError.StatusCode == 403)
}
