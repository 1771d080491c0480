// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/lisa/lib/atomicfile"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/netutil"
)

// OAuth application constants. The application is a public PKCE
// client; it has no secret.
const (
	ClientID            = "6491511fa2aaf1debb7ed70af823f113"
	DefaultAuthorizeURL = "https://linear.app/oauth/authorize"
	DefaultTokenURL     = "https://api.linear.app/oauth/token"
)

// refreshMargin is how long before expiry a stored token is refreshed.
const refreshMargin = 5 * time.Minute

// defaultTokenLifetime applies when the token endpoint omits
// expires_in.
const defaultTokenLifetime = 36000 * time.Second

// authenticator provides Authorization header values.
type authenticator interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

// apiKeyAuth sends a personal API key without a scheme.
type apiKeyAuth string

func (key apiKeyAuth) AuthorizationHeader(context.Context) (string, error) {
	return string(key), nil
}

// bearerAuth sends OAuth access tokens.
type bearerAuth struct {
	tokens TokenSource
}

func (auth bearerAuth) AuthorizationHeader(ctx context.Context) (string, error) {
	token, err := auth.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// TokenSource supplies a currently valid OAuth access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StoredToken is the on-disk token record. ExpiresAt is epoch seconds.
type StoredToken struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	ExpiresAt    float64 `json:"expires_at"`
}

// Expiry returns ExpiresAt as a time.
func (token StoredToken) Expiry() time.Time {
	seconds, fraction := math.Modf(token.ExpiresAt)
	return time.Unix(int64(seconds), int64(fraction*1e9))
}

// FileTokenConfig configures a FileTokenSource.
type FileTokenConfig struct {
	// Path is the token file. Required.
	Path string

	// TokenURL defaults to DefaultTokenURL.
	TokenURL string

	// ClientID defaults to ClientID.
	ClientID string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// FileTokenSource reads the token written by Login and refreshes it
// shortly before it expires. Safe for concurrent use.
type FileTokenSource struct {
	path       string
	tokenURL   string
	clientID   string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger

	mu sync.Mutex
}

// NewFileTokenSource creates a token source over config.Path.
func NewFileTokenSource(config FileTokenConfig) *FileTokenSource {
	source := &FileTokenSource{
		path:       config.Path,
		tokenURL:   config.TokenURL,
		clientID:   config.ClientID,
		httpClient: config.HTTPClient,
		clock:      config.Clock,
		logger:     config.Logger,
	}
	if source.tokenURL == "" {
		source.tokenURL = DefaultTokenURL
	}
	if source.clientID == "" {
		source.clientID = ClientID
	}
	if source.httpClient == nil {
		source.httpClient = http.DefaultClient
	}
	if source.clock == nil {
		source.clock = clock.Real()
	}
	if source.logger == nil {
		source.logger = slog.Default()
	}
	return source
}

// Path returns the token file path.
func (source *FileTokenSource) Path() string {
	return source.path
}

// Exists reports whether a token with an access token is stored.
func (source *FileTokenSource) Exists() bool {
	stored, err := source.load()
	return err == nil && stored.AccessToken != ""
}

// Token returns the stored access token, refreshing it first when it
// expires within five minutes. Returns ErrNotAuthenticated (wrapped)
// when nothing usable is stored.
func (source *FileTokenSource) Token(ctx context.Context) (string, error) {
	source.mu.Lock()
	defer source.mu.Unlock()

	stored, err := source.load()
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		return "", err
	}
	if stored.AccessToken == "" {
		return "", ErrNotAuthenticated
	}

	now := source.clock.Now()
	if now.Before(stored.Expiry().Add(-refreshMargin)) {
		return stored.AccessToken, nil
	}
	if stored.RefreshToken == "" {
		return "", fmt.Errorf("%w: token expired and no refresh token is stored", ErrNotAuthenticated)
	}

	source.logger.Info("refreshing tracker access token", "expired_at", stored.Expiry().Format(time.RFC3339))
	refreshed, err := exchangeToken(ctx, source.httpClient, source.tokenURL, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {source.clientID},
		"refresh_token": {stored.RefreshToken},
	}, now)
	if err != nil {
		return "", fmt.Errorf("tracker: token expired and refresh failed (run `lisa login` or set LINEAR_API_KEY): %w", err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = stored.RefreshToken
	}
	if err := source.store(refreshed); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Store writes token to the file with owner-only permissions.
func (source *FileTokenSource) Store(token StoredToken) error {
	source.mu.Lock()
	defer source.mu.Unlock()
	return source.store(token)
}

// Clear deletes the token file.
func (source *FileTokenSource) Clear() error {
	source.mu.Lock()
	defer source.mu.Unlock()
	return atomicfile.Remove(source.path)
}

func (source *FileTokenSource) store(token StoredToken) error {
	if err := os.MkdirAll(filepath.Dir(source.path), 0700); err != nil {
		return fmt.Errorf("tracker: creating token directory: %w", err)
	}
	if err := atomicfile.WriteJSON(source.path, token, 0600); err != nil {
		return fmt.Errorf("tracker: saving token: %w", err)
	}
	return nil
}

func (source *FileTokenSource) load() (StoredToken, error) {
	data, err := os.ReadFile(source.path)
	if err != nil {
		return StoredToken{}, err
	}
	var stored StoredToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return StoredToken{}, fmt.Errorf("tracker: parsing token file %s: %w", source.path, err)
	}
	return stored, nil
}

type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
}

// exchangeToken posts a form to the OAuth token endpoint and converts
// the response into a StoredToken relative to now.
func exchangeToken(ctx context.Context, httpClient *http.Client, tokenURL string, form url.Values, now time.Time) (StoredToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return StoredToken{}, fmt.Errorf("creating token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := httpClient.Do(request)
	if err != nil {
		return StoredToken{}, fmt.Errorf("token request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return StoredToken{}, &APIError{StatusCode: response.StatusCode, Message: netutil.ErrorBody(response.Body)}
	}
	var decoded tokenResponse
	if err := netutil.DecodeResponse(response.Body, &decoded); err != nil {
		return StoredToken{}, err
	}
	if decoded.AccessToken == "" {
		return StoredToken{}, fmt.Errorf("token response has no access_token")
	}

	lifetime := defaultTokenLifetime
	if decoded.ExpiresIn > 0 {
		lifetime = time.Duration(decoded.ExpiresIn * float64(time.Second))
	}
	expiry := now.Add(lifetime)
	return StoredToken{
		AccessToken:  decoded.AccessToken,
		RefreshToken: decoded.RefreshToken,
		ExpiresAt:    float64(expiry.UnixNano()) / 1e9,
	}, nil
}
