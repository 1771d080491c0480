// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bureau-foundation/lisa/lib/clock"
)

// DefaultListenAddress is the loopback address registered as the OAuth
// redirect target.
const DefaultListenAddress = "localhost:19284"

// defaultLoginTimeout bounds the wait for the browser callback.
const defaultLoginTimeout = 120 * time.Second

// LoginConfig configures Login.
type LoginConfig struct {
	// Open presents the authorization URL to the operator, usually by
	// launching a browser. Required.
	Open func(authorizeURL string) error

	// AuthorizeURL defaults to DefaultAuthorizeURL.
	AuthorizeURL string

	// TokenURL defaults to DefaultTokenURL.
	TokenURL string

	// ClientID defaults to ClientID.
	ClientID string

	// ListenAddress is where the callback server listens. Defaults to
	// DefaultListenAddress. A zero port picks a free one.
	ListenAddress string

	// Timeout bounds the wait for the callback. Defaults to 120s.
	Timeout time.Duration

	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

type callbackResult struct {
	code string
	err  error
}

// Login runs the PKCE authorization-code flow: it starts a loopback
// callback server, opens the authorization URL, waits for the redirect,
// and exchanges the code for a token. The caller stores the result.
func Login(ctx context.Context, config LoginConfig) (StoredToken, error) {
	if config.Open == nil {
		return StoredToken{}, fmt.Errorf("tracker: login requires an Open function")
	}
	authorizeURL := valueOr(config.AuthorizeURL, DefaultAuthorizeURL)
	tokenURL := valueOr(config.TokenURL, DefaultTokenURL)
	clientID := valueOr(config.ClientID, ClientID)
	listenAddress := valueOr(config.ListenAddress, DefaultListenAddress)
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := randomToken(64)
	if err != nil {
		return StoredToken{}, err
	}
	state, err := randomToken(32)
	if err != nil {
		return StoredToken{}, err
	}
	digest := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(digest[:])

	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return StoredToken{}, fmt.Errorf("tracker: starting callback server on %s: %w", listenAddress, err)
	}
	host, _, err := net.SplitHostPort(listenAddress)
	if err != nil {
		listener.Close()
		return StoredToken{}, fmt.Errorf("tracker: invalid listen address %q: %w", listenAddress, err)
	}
	_, port, _ := net.SplitHostPort(listener.Addr().String())
	redirectURI := "http://" + net.JoinHostPort(host, port) + "/callback"

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(writer http.ResponseWriter, request *http.Request) {
		result := parseCallback(request.URL.Query(), state)
		message := "Login successful. You can close this tab."
		if result.err != nil {
			message = "Login failed. You can close this tab."
		}
		writer.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(writer, "<html><body><h2>%s</h2></body></html>", html.EscapeString(message))
		select {
		case results <- result:
		default:
		}
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(listener)
	defer server.Close()

	query := url.Values{
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"response_type":         {"code"},
		"scope":                 {"read,write"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"state":                 {state},
		"prompt":                {"consent"},
	}
	fullURL := authorizeURL + "?" + query.Encode()
	logger.Info("waiting for tracker authorization", "timeout", timeout)
	if err := config.Open(fullURL); err != nil {
		return StoredToken{}, fmt.Errorf("tracker: opening authorization URL: %w", err)
	}

	waitContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var result callbackResult
	select {
	case result = <-results:
	case <-waitContext.Done():
		return StoredToken{}, fmt.Errorf("tracker: waiting for authorization: %w", waitContext.Err())
	}
	if result.err != nil {
		return StoredToken{}, result.err
	}

	return exchangeToken(ctx, httpClient, tokenURL, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"code":          {result.code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}, clk.Now())
}

func parseCallback(query url.Values, expectedState string) callbackResult {
	if reason := query.Get("error"); reason != "" {
		return callbackResult{err: fmt.Errorf("tracker: authorization denied: %s", reason)}
	}
	if query.Get("state") != expectedState {
		return callbackResult{err: errors.New("tracker: authorization state mismatch")}
	}
	code := query.Get("code")
	if code == "" {
		return callbackResult{err: errors.New("tracker: no authorization code received")}
	}
	return callbackResult{code: code}
}

func randomToken(size int) (string, error) {
	buffer := make([]byte, size)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("tracker: generating random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
