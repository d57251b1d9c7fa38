package mock

import (
	"context"
	"fmt"

	"github.com/ElvertMora/grimoirelab-perceval/internal/fetch"
)

// Client serves canned payloads keyed by URL and records every call, so
// tests can assert whether the network was touched at all.
type Client struct {
	BodyByURL map[string]string
	ErrByURL  map[string]error
	Calls     []string
}

func (c *Client) Get(ctx context.Context, url string) (string, error) {
	_ = ctx
	c.Calls = append(c.Calls, url)
	if c.ErrByURL != nil {
		if err, ok := c.ErrByURL[url]; ok {
			return "", err
		}
	}
	body, ok := c.BodyByURL[url]
	if !ok {
		return "", &fetch.NetworkError{URL: url, Err: fmt.Errorf("no canned body for %s", url)}
	}
	return body, nil
}
