// Package ics reads busy time from published iCalendar feeds.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/security"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize = 64
	fetchTimeout     = 15 * time.Second
	maxFeedBytes     = 10 << 20
)

// Feed is one subscribed calendar. Attendee names whose busy time the feed
// describes; empty means the requesting user.
type Feed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Attendee string `yaml:"attendee"`
}

type cachedBody struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher downloads feeds with conditional requests, keeping the last good
// body of each URL in an LRU cache.
type Fetcher struct {
	client *http.Client
	cache  *lru.Cache[string, cachedBody]
	logger *slog.Logger
}

// NewFetcher creates a fetcher caching up to size feed bodies.
func NewFetcher(client *http.Client, size int, logger *slog.Logger) (*Fetcher, error) {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, cachedBody](size)
	if err != nil {
		return nil, fmt.Errorf("create feed cache: %w", err)
	}
	return &Fetcher{client: client, cache: cache, logger: logger}, nil
}

// Fetch returns the feed body. On 304, a network failure or a non-OK status
// the cached body is returned when one exists. file:// feeds are read from
// disk on every call.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if feedURL == "" {
		return nil, errors.New("feed url is empty")
	}
	if path, ok := strings.CutPrefix(feedURL, "file://"); ok {
		body, err := security.SafeReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read feed file: %w", err)
		}
		return body, nil
	}
	cached, hasCache := f.cache.Get(feedURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	if hasCache {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			f.logger.Warn("ics fetch failed, using cached body", "url", redactURL(feedURL), "error", err)
			return cached.body, nil
		}
		return nil, fmt.Errorf("fetch feed %s: %w", redactURL(feedURL), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return nil, fmt.Errorf("read feed %s: %w", redactURL(feedURL), err)
		}
		f.cache.Add(feedURL, cachedBody{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		})
		f.logger.Debug("ics fetch success", "url", redactURL(feedURL), "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if !hasCache {
			return nil, fmt.Errorf("feed %s: 304 without cached body", redactURL(feedURL))
		}
		f.logger.Debug("ics feed not modified", "url", redactURL(feedURL))
		return cached.body, nil

	default:
		if hasCache {
			f.logger.Warn("ics fetch non-OK, using cached body", "url", redactURL(feedURL), "status", resp.StatusCode)
			return cached.body, nil
		}
		return nil, fmt.Errorf("feed %s: %s", redactURL(feedURL), resp.Status)
	}
}

// redactURL keeps scheme and host; feed paths often embed private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/(redacted)"
}
