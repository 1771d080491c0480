// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracker is a typed client for the Linear GraphQL API.
//
// The client reads a unit of work (an issue with its child issues and
// their blocking relations), reads child details, and manages the
// comments that carry the progress document. Every request is a POST
// of {query, variables} to a single endpoint; a response carrying an
// "errors" array is a failure even when the HTTP status is 200.
//
// Two authentication modes exist. A personal API key is sent in the
// Authorization header as-is. An OAuth access token, read from a file
// written by [Login], is sent as "Bearer <token>" and refreshed before
// it expires.
package tracker
