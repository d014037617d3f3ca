package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi/graphmerge/internal/util"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

// ErrUnsupportedContent is returned for responses that are neither HTML nor
// plain text.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Fetcher downloads web pages and returns their readable text. HTML pages
// are reduced to their main content with readability. Results are cached
// per URL and concurrent fetches of one URL share a single request.
//
// A Fetcher should be created using NewFetcher.
type Fetcher struct {
	client   *http.Client
	maxBytes int64

	cache   map[string]string
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewFetcherParams configures a Fetcher. Client defaults to an http.Client
// with a 20 second timeout, MaxBytes to 2 MiB.
type NewFetcherParams struct {
	Client   *http.Client
	MaxBytes int64
}

func NewFetcher(params NewFetcherParams) *Fetcher {
	client := params.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	maxBytes := params.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &Fetcher{
		client:   client,
		maxBytes: maxBytes,
		cache:    make(map[string]string),
	}
}

// Fetch returns the readable text of pageURL.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if cached, ok := f.cached(pageURL); ok {
		return cached, nil
	}

	result, err, _ := f.group.Do(pageURL, func() (any, error) {
		if cached, ok := f.cached(pageURL); ok {
			return cached, nil
		}

		text, err := f.fetch(ctx, pageURL)
		if err != nil {
			return "", err
		}

		f.cacheMu.Lock()
		f.cache[pageURL] = text
		f.cacheMu.Unlock()
		return text, nil
	})
	if err != nil {
		logger.Debug("[Web] Fetch failed", "url", pageURL, "err", err)
		return "", err
	}
	return result.(string), nil
}

func (f *Fetcher) cached(pageURL string) (string, bool) {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	text, ok := f.cache[pageURL]
	return text, ok
}

func (f *Fetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html, text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, f.maxBytes)
	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/html"):
		article, err := readability.FromReader(body, u)
		if err != nil {
			return "", fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return "", fmt.Errorf("failed to render article text: %w", err)
		}
		return util.SanitizeText(strings.TrimSpace(builder.String())), nil
	case strings.HasPrefix(contentType, "text/"):
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return util.SanitizeText(strings.TrimSpace(string(data))), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
}
