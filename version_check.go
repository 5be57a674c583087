package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/types"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
	"golang.org/x/mod/semver"
)

const (
	releasesURL = "https://api.github.com/repos/oszuidwest/zwfm-alarmwatch/releases/latest"

	releaseFirstCheck = 30 * time.Second
	releaseInterval   = 24 * time.Hour
	releaseTimeout    = 30 * time.Second
	releaseAttempts   = 3
	releaseRetryMin   = time.Minute
	releaseRetryMax   = 10 * time.Minute
)

// errRetryLater marks a release lookup worth repeating within the same cycle.
var errRetryLater = errors.New("release lookup should be retried")

// VersionChecker polls the release feed so the dashboard can flag updates.
type VersionChecker struct {
	url    string
	client *http.Client

	mu     sync.RWMutex
	latest string
	etag   string
}

// NewVersionChecker returns a VersionChecker for the project's release feed.
func NewVersionChecker() *VersionChecker {
	return &VersionChecker{
		url:    releasesURL,
		client: &http.Client{Timeout: releaseTimeout},
	}
}

// Run looks up the latest release shortly after start and then once a day
// until ctx is done.
func (vc *VersionChecker) Run(ctx context.Context) {
	wait := releaseFirstCheck
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		vc.poll(ctx)
		wait = releaseInterval
	}
}

func (vc *VersionChecker) poll(ctx context.Context) {
	backoff := util.NewBackoff(releaseRetryMin, releaseRetryMax)
	for attempt := 1; ; attempt++ {
		err := vc.refresh(ctx)
		if err == nil {
			return
		}
		if !errors.Is(err, errRetryLater) || attempt == releaseAttempts {
			slog.Debug("release check failed", "attempt", attempt, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.Next()):
		}
	}
}

type release struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// refresh fetches the latest release once. Rate limits, server errors and
// transport failures wrap errRetryLater; other outcomes end the cycle.
func (vc *VersionChecker) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vc.url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "zwfm-alarmwatch/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := vc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errRetryLater, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch code := resp.StatusCode; {
	case code == http.StatusNotModified, code == http.StatusNotFound:
		return nil
	case code == http.StatusForbidden, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: status %d", errRetryLater, code)
	case code != http.StatusOK:
		return fmt.Errorf("unexpected status %d", code)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return fmt.Errorf("%w: %w", errRetryLater, err)
	}
	if rel.Draft || rel.Prerelease || rel.TagName == "" {
		return nil
	}

	vc.mu.Lock()
	vc.latest = strings.TrimPrefix(strings.TrimSpace(rel.TagName), "v")
	if etag := resp.Header.Get("ETag"); etag != "" {
		vc.etag = etag
	}
	vc.mu.Unlock()
	return nil
}

// Info returns the running and latest known versions.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	latest := vc.latest
	vc.mu.RUnlock()

	current := strings.TrimPrefix(strings.TrimSpace(Version), "v")
	return types.VersionInfo{
		Current:     current,
		Latest:      latest,
		UpdateAvail: latest != "" && isNewerVersion(latest, current),
		Commit:      Commit,
		BuildTime:   util.FormatHumanTime(BuildTime),
	}
}

// isNewerVersion reports whether latest is a higher semantic version than
// current. Development builds never report an update.
func isNewerVersion(latest, current string) bool {
	l, c := canonical(latest), canonical(current)
	if !semver.IsValid(c) {
		return false
	}
	return semver.Compare(l, c) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
