package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andresuchdata/radx-zenodo-upload/internal/cache"
	"github.com/andresuchdata/radx-zenodo-upload/pkg/logger"
)

// NotFoundMarker is written into the Filename column when a page lists no items.
const NotFoundMarker = "NOT FOUND"

const maxPageBytes = 8 << 20

var (
	// ErrNotFound is returned when a staging page carries no items array.
	ErrNotFound = errors.New("no filename found on staging page")
	// ErrUnnamedItems is returned when the items array lists no entry with a name.
	ErrUnnamedItems = errors.New("staging page lists no named item")
)

var itemsPattern = regexp.MustCompile(`(?s)"items":(\[.*?\])`)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type item struct {
	Name string `json:"name"`
}

// Resolver looks up the data file name behind a staging page URL.
type Resolver struct {
	httpClient HTTPDoer
	cache      cache.FilenameCache
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(r *Resolver) { r.httpClient = c }
}

// WithCache stores resolved names in c.
func WithCache(c cache.FilenameCache) Option {
	return func(r *Resolver) { r.cache = c }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{httpClient: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches stagingURL and returns the first named item listed on the page.
func (r *Resolver) Resolve(ctx context.Context, stagingURL string) (string, error) {
	if r.cache != nil {
		if name, ok, err := r.cache.Get(ctx, stagingURL); err == nil && ok {
			return name, nil
		}
	}

	body, err := r.fetch(ctx, stagingURL)
	if err != nil {
		return "", err
	}

	name, err := extractFilename(body)
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, stagingURL, name); err != nil {
			logger.Log.Warn().Err(err).Str("url", stagingURL).Msg("failed to cache filename")
		}
	}
	return name, nil
}

func (r *Resolver) fetch(ctx context.Context, stagingURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stagingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", stagingURL, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", stagingURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: status code %d", stagingURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", stagingURL, err)
	}
	return body, nil
}

// extractFilename searches script bodies first, then the raw page.
func extractFilename(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse error: %w", err)
	}

	var candidates []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); strings.Contains(text, `"items":`) {
			candidates = append(candidates, text)
		}
	})
	candidates = append(candidates, string(page))

	var decodeErr error
	unnamed := false
	for _, text := range candidates {
		match := itemsPattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		var items []item
		if err := json.Unmarshal([]byte(match[1]), &items); err != nil {
			decodeErr = fmt.Errorf("failed to decode items array: %w", err)
			continue
		}
		for _, it := range items {
			if it.Name != "" {
				return it.Name, nil
			}
		}
		unnamed = true
	}

	switch {
	case decodeErr != nil:
		return "", decodeErr
	case unnamed:
		return "", ErrUnnamedItems
	}
	return "", ErrNotFound
}
