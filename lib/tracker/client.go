// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/netutil"
)

// DefaultEndpoint is the public Linear GraphQL endpoint.
const DefaultEndpoint = "https://api.linear.app/graphql"

// defaultTimeout bounds each request when Config.Timeout is zero.
const defaultTimeout = 30 * time.Second

// Config holds configuration for creating a Client.
//
// Exactly one authentication mode must be configured: APIKey, or
// Tokens.
type Config struct {
	// Endpoint is the GraphQL URL. Defaults to DefaultEndpoint. Must
	// use HTTPS.
	Endpoint string

	// APIKey is a personal API key, sent without a scheme prefix.
	APIKey string

	// Tokens supplies OAuth access tokens, sent as Bearer tokens.
	Tokens TokenSource

	// HTTPClient is used for all requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Timeout bounds each request. Defaults to 30 seconds.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a Linear GraphQL client.
type Client struct {
	endpoint   string
	httpClient *http.Client
	auth       authenticator
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a tracker client. Returns an error when the
// endpoint is not HTTPS or the auth configuration is not exactly one
// mode.
func NewClient(config Config) (*Client, error) {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("tracker: client requires HTTPS (got %q)", endpoint)
	}

	hasKey := config.APIKey != ""
	hasTokens := config.Tokens != nil
	if hasKey && hasTokens {
		return nil, fmt.Errorf("tracker: cannot configure both an API key and a token source")
	}
	if !hasKey && !hasTokens {
		return nil, ErrNotAuthenticated
	}

	var auth authenticator
	if hasKey {
		auth = apiKeyAuth(config.APIKey)
	} else {
		auth = bearerAuth{tokens: config.Tokens}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		auth:       auth,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do posts a GraphQL operation and decodes its "data" member into
// result. Returns *APIError on a non-2xx status and *GraphQLError when
// the response carries errors.
func (client *Client) do(ctx context.Context, query string, variables map[string]any, result any) error {
	ctx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("tracker: marshaling request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("tracker: creating request: %w", err)
	}
	header, err := client.auth.AuthorizationHeader(ctx)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", header)
	request.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("tracker: request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &APIError{
			StatusCode: response.StatusCode,
			Message:    netutil.ErrorBody(response.Body),
		}
	}

	var envelope graphqlResponse
	if err := netutil.DecodeResponse(response.Body, &envelope); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	if len(envelope.Errors) > 0 {
		graphqlError := &GraphQLError{}
		for _, item := range envelope.Errors {
			graphqlError.Messages = append(graphqlError.Messages, item.Message)
		}
		client.logger.Debug("tracker returned errors", "messages", graphqlError.Messages)
		return graphqlError
	}
	if result == nil {
		return nil
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("tracker: response has no data")
	}
	if err := json.Unmarshal(envelope.Data, result); err != nil {
		return fmt.Errorf("tracker: decoding data: %w", err)
	}
	return nil
}
