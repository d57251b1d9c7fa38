package impl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ElvertMora/grimoirelab-perceval/internal/fetch"
)

type HTTPClient struct {
	client    *http.Client
	userAgent string
}

func NewHTTPClient(timeout time.Duration, userAgent string) *HTTPClient {
	return &HTTPClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Get returns the response body as text, untouched. Error statuses become
// *fetch.StatusError; transport failures become *fetch.NetworkError.
func (c *HTTPClient) Get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &fetch.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &fetch.StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &fetch.NetworkError{URL: url, Err: err}
	}
	return string(body), nil
}
