// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/lisa/lib/atomicfile"
	"github.com/bureau-foundation/lisa/lib/clock"
	"github.com/bureau-foundation/lisa/lib/netutil"
)

// updateTimeout bounds the release lookup.
const updateTimeout = 3 * time.Second

// UpdateChecker asks a releases endpoint whether a newer version than
// the running one exists. Answers are cached in CachePath for
// Interval. Every failure is logged and treated as "no update".
type UpdateChecker struct {
	// URL returns the latest release as JSON with a "tag_name" field.
	URL string

	// CachePath remembers the last answer. Empty disables caching.
	CachePath string

	Interval   time.Duration
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

// updateCache is the on-disk record of the last lookup. last_check is
// epoch seconds.
type updateCache struct {
	LastCheck     float64 `json:"last_check"`
	LatestVersion string  `json:"latest_version"`
}

// Newer returns the latest release version and true when it is newer
// than current. Development and pre-release builds never report an
// update.
func (c *UpdateChecker) Newer(ctx context.Context, current string) (string, bool) {
	running, ok := ParseRelease(current)
	if !ok {
		return "", false
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checkerClock := c.Clock
	if checkerClock == nil {
		checkerClock = clock.Real()
	}
	now := checkerClock.Now()

	latest, fresh := c.cached(now)
	if !fresh {
		fetched, err := c.fetch(ctx)
		if err != nil {
			logger.Debug("update check failed", "url", c.URL, "error", err)
			return "", false
		}
		latest = fetched
		if err := c.store(now, latest); err != nil {
			logger.Debug("caching update check", "path", c.CachePath, "error", err)
		}
	}

	release, ok := ParseRelease(latest)
	if !ok || CompareRelease(release, running) <= 0 {
		return "", false
	}
	return latest, true
}

// cached returns the cached version when it is younger than Interval.
func (c *UpdateChecker) cached(now time.Time) (string, bool) {
	if c.CachePath == "" {
		return "", false
	}
	data, err := os.ReadFile(c.CachePath)
	if err != nil {
		return "", false
	}
	var cache updateCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return "", false
	}
	checked := time.Unix(0, int64(cache.LastCheck*float64(time.Second)))
	if now.Sub(checked) >= c.Interval {
		return "", false
	}
	return cache.LatestVersion, true
}

func (c *UpdateChecker) store(now time.Time, latest string) error {
	if c.CachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.CachePath), 0o755); err != nil {
		return err
	}
	cache := updateCache{
		LastCheck:     float64(now.UnixNano()) / float64(time.Second),
		LatestVersion: latest,
	}
	return atomicfile.WriteJSON(c.CachePath, cache, 0o644)
}

// fetch returns the latest release tag without its "v" prefix.
func (c *UpdateChecker) fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", err
	}
	request.Header.Set("Accept", "application/vnd.github.v3+json")
	request.Header.Set("User-Agent", "lisa-update-check")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := netutil.DecodeResponse(response.Body, &release); err != nil {
		return "", err
	}
	tag := strings.TrimPrefix(release.TagName, "v")
	if tag == "" {
		return "", errors.New("release has no tag")
	}
	return tag, nil
}

// ParseRelease parses "1.4.0" or "v1.4.0" into its numeric parts.
// Development, pre-release, and build-tagged versions are rejected.
func ParseRelease(s string) ([]int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return nil, false
	}
	for _, marker := range []string{"dev", "+", "rc", "alpha", "beta"} {
		if strings.Contains(s, marker) {
			return nil, false
		}
	}
	var parts []int
	for field := range strings.SplitSeq(s, ".") {
		part, err := strconv.Atoi(field)
		if err != nil {
			return nil, false
		}
		parts = append(parts, part)
	}
	return parts, true
}

// CompareRelease orders parsed releases part by part; a release that
// is a prefix of another is older.
func CompareRelease(a, b []int) int {
	return slices.Compare(a, b)
}
