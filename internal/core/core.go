package core

import (
	"context"
	"errors"
	"iter"
)

// Stream yields records in feed order together with at most one error. A
// non-nil error is the final element; nothing follows it. Ranging a Stream a
// second time re-executes the producing pipeline from the start.
type Stream = iter.Seq2[Record, error]

// ErrCacheUnavailable reports that no cache store was configured at all.
// It is distinct from an empty or failing store.
var ErrCacheUnavailable = errors.New("cache instance was not provided")

// Source is the capability a backend exposes to the runner: a place records
// come from, fetched either live or replayed from the raw payloads archived
// by the last successful run.
type Source interface {
	// Origin identifies where records come from, e.g. a feed URL.
	Origin() string
	// Fetch retrieves fresh items from the origin.
	Fetch(ctx context.Context) Stream
	// FetchFromCache replays the items archived by the last successful
	// Fetch without touching the network. Sources with no cache store
	// configured yield ErrCacheUnavailable.
	FetchFromCache(ctx context.Context) Stream
}
