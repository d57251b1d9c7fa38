package fetch

import (
	"context"
	"fmt"
)

// Client retrieves the raw payload of a feed over HTTP. Implementations make
// a single attempt per call; any retry policy belongs to the caller.
type Client interface {
	Get(ctx context.Context, url string) (string, error)
}

// StatusError reports a response that arrived with an error status. The
// request itself worked, so the server is reachable and answered.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("get %s: unexpected status %s", e.URL, e.Status)
}

// NetworkError reports a request that never produced an HTTP response:
// DNS failure, refused connection, timeout, or a broken body read.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("get %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
