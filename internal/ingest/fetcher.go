package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPPageFetcher is the default PageFetcher: fetches a page and returns
// its visible text. Readability refinement beyond text extraction belongs
// to external collaborators.
type HTTPPageFetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// NewHTTPPageFetcher creates a fetcher with a redirect cap and byte limit.
func NewHTTPPageFetcher(timeout time.Duration, userAgent string, maxBytes int64) *HTTPPageFetcher {
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	return &HTTPPageFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// FetchText retrieves the URL and extracts its visible text.
func (f *HTTPPageFetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") || strings.Contains(contentType, "xhtml") {
		return VisibleText(string(body))
	}
	return CleanText(string(body)), nil
}
