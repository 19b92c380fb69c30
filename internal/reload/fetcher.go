package reload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"hotreload/pkg/types"
)

const maxDocumentBytes = 32 << 20

// HTTPFetcher re-fetches a document as a reload probe. It honours context
// cancellation, which gives the page strategy its abort capability.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher that never follows redirects off the
// requested origin and attaches no credentials.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				origin := via[0].URL
				if req.URL.Scheme != origin.Scheme || req.URL.Host != origin.Host {
					return fmt.Errorf("%w: %s", ErrCrossOrigin, req.URL.Redacted())
				}
				return nil
			},
		},
	}
}

// Fetch issues GET url with the probe header and returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(types.ProbeHeader, types.ProbeValue)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}
