package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ElvertMora/grimoirelab-perceval/internal/cache"
	"github.com/ElvertMora/grimoirelab-perceval/internal/core"
	"github.com/ElvertMora/grimoirelab-perceval/internal/fetch"
	"github.com/ElvertMora/grimoirelab-perceval/internal/retry"
)

// Runner drives one invocation end to end: pick the stream, apply the
// filter, hand records to the writer, and apply the cache recovery policy
// when the run fails part way.
type Runner struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// RecordWriter consumes the records a run produces.
type RecordWriter interface {
	Write(rec core.Record) error
}

// Matcher decides which records reach the writer.
type Matcher interface {
	Match(rec core.Record) (bool, error)
}

// Options configure a single run.
type Options struct {
	// FromCache replays the cached payload instead of hitting the network.
	FromCache bool
	// Store backs the source's cache; the runner only uses it for the
	// recovery policy. May be nil.
	Store cache.Store
	// Filter drops records that do not match. May be nil.
	Filter Matcher
	// Retries re-runs a live fetch that failed at the network layer.
	// Zero keeps the single-attempt behavior.
	Retries int
}

// Result sums up a finished run.
type Result struct {
	Written     int
	Filtered    int
	StartedAt   time.Time
	CompletedAt time.Time
}

func (r *Runner) Run(ctx context.Context, source core.Source, writer RecordWriter, opts Options) (Result, error) {
	if source == nil {
		return Result{}, fmt.Errorf("source is required")
	}
	if writer == nil {
		return Result{}, fmt.Errorf("writer is required")
	}

	result := Result{StartedAt: time.Now().UTC()}
	logger := r.logger.With("origin", source.Origin())
	ctx = core.WithLogger(ctx, logger)

	attempt := func() (int, int, error) {
		stream := source.Fetch(ctx)
		if opts.FromCache {
			stream = source.FetchFromCache(ctx)
		}

		written, filtered := 0, 0
		for rec, err := range stream {
			if err != nil {
				return written, filtered, err
			}
			if opts.Filter != nil {
				matched, err := opts.Filter.Match(rec)
				if err != nil {
					return written, filtered, err
				}
				if !matched {
					filtered++
					continue
				}
			}
			if err := writer.Write(rec); err != nil {
				return written, filtered, err
			}
			written++
		}
		return written, filtered, nil
	}

	var runErr error
	if !opts.FromCache && opts.Retries > 0 {
		// network failures happen before anything is yielded or cached,
		// so retrying the whole run cannot duplicate output
		runErr = retry.Do(ctx, retry.Config{
			Attempts:  opts.Retries + 1,
			Retryable: isNetworkError,
		}, func() error {
			var err error
			result.Written, result.Filtered, err = attempt()
			return err
		})
	} else {
		result.Written, result.Filtered, runErr = attempt()
	}
	result.CompletedAt = time.Now().UTC()

	if runErr != nil {
		r.recoverCache(logger, opts, runErr)
		return result, runErr
	}

	logger.Info("run finished", "written", result.Written, "filtered", result.Filtered)
	return result, nil
}

// recoverCache restores the cache backup after failures that happened past
// the fetch stage. Fetch-stage failures never touched the store, so the
// committed unit is already the right one.
func (r *Runner) recoverCache(logger *slog.Logger, opts Options, runErr error) {
	if opts.Store == nil || opts.FromCache {
		return
	}
	var statusErr *fetch.StatusError
	var netErr *fetch.NetworkError
	if errors.As(runErr, &statusErr) || errors.As(runErr, &netErr) {
		return
	}
	if err := opts.Store.Recover(); err != nil {
		logger.Warn("cache recover failed", "error", err)
		return
	}
	logger.Info("cache restored from backup")
}

func isNetworkError(err error) bool {
	var netErr *fetch.NetworkError
	return errors.As(err, &netErr)
}
