package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"vectormap/internal/tile"
)

// Fetcher retrieves tile bytes from the network.
type Fetcher interface {
	Fetch(ctx context.Context, c tile.Coord, kind tile.Kind) ([]byte, error)
}

const defaultUserAgent = "vectormap/1.0"

// HTTPFetcher downloads tiles from {z}/{x}/{y} URL templates.
type HTTPFetcher struct {
	client    *http.Client
	templates map[tile.Kind]string
	userAgent string
}

type HTTPFetcherConfig struct {
	VectorURL string
	RasterURL string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// NewHTTPFetcher validates the templates and substitutes the API key. An
// empty template disables that kind. It returns nil, nil when neither
// template is usable, which puts the loader in local-only mode.
func NewHTTPFetcher(cfg HTTPFetcherConfig) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		client:    cfg.Client,
		templates: make(map[tile.Kind]string),
		userAgent: cfg.UserAgent,
	}
	if f.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		f.client = &http.Client{Timeout: timeout}
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}

	for kind, tmpl := range map[tile.Kind]string{tile.Vector: cfg.VectorURL, tile.Raster: cfg.RasterURL} {
		if tmpl == "" {
			continue
		}
		if err := tile.ValidateTemplate(tmpl); err != nil {
			return nil, fmt.Errorf("%s url: %w", kind, err)
		}
		if tile.NeedsKey(tmpl) {
			if cfg.APIKey == "" {
				continue
			}
			tmpl = tile.WithKey(tmpl, cfg.APIKey)
		}
		f.templates[kind] = tmpl
	}

	if len(f.templates) == 0 {
		return nil, nil
	}
	return f, nil
}

// Supports reports whether the fetcher has a template for kind.
func (f *HTTPFetcher) Supports(kind tile.Kind) bool {
	_, ok := f.templates[kind]
	return ok
}

func (f *HTTPFetcher) Fetch(ctx context.Context, c tile.Coord, kind tile.Kind) ([]byte, error) {
	tmpl, ok := f.templates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no %s url template", ErrNotFound, kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tile.FormatURL(tmpl, c), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s tile %s: %w", kind, c, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, fmt.Errorf("%w: %s tile %s", ErrNotFound, kind, c)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d for %s tile %s", resp.StatusCode, kind, c)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s tile %s: %w", kind, c, err)
	}
	return data, nil
}
