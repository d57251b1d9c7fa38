package rss

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ElvertMora/grimoirelab-perceval/internal/cache"
	"github.com/ElvertMora/grimoirelab-perceval/internal/core"
	"github.com/ElvertMora/grimoirelab-perceval/internal/feed"
	"github.com/ElvertMora/grimoirelab-perceval/internal/fetch"
)

const (
	// BackendName labels records produced by this backend.
	BackendName = "rss"
	// BackendVersion is stamped into every record.
	BackendVersion = "0.1.0"
	// CategoryEntry is the only item category this backend produces.
	CategoryEntry = "entry"

	tracerName = "perceval/backends/rss"
)

// Backend turns one feed origin into a stream of records, fetched live or
// replayed from the cache store.
type Backend struct {
	url    string
	tag    string
	client fetch.Client
	store  cache.Store
	queue  *cache.Queue
	parser *feed.Parser
	logger *slog.Logger
}

// New wires a backend for one feed URL. A nil store disables caching; an
// empty tag defaults to the url.
func New(url string, client fetch.Client, store cache.Store, tag string, logger *slog.Logger) (*Backend, error) {
	if url == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("fetch client is required")
	}
	if tag == "" {
		tag = url
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		url:    url,
		tag:    tag,
		client: client,
		store:  store,
		queue:  cache.NewQueue(store),
		parser: feed.NewParser(),
		logger: logger,
	}, nil
}

func (b *Backend) Origin() string {
	return b.url
}

// Fetch runs the live pipeline: purge stale pending payloads, fetch the
// document, stage it, parse it, commit the staged unit, then yield records
// lazily. The commit lands before the first yield, so consuming any prefix
// of the stream leaves the cache already up to date.
func (b *Backend) Fetch(ctx context.Context) core.Stream {
	return func(yield func(core.Record, error) bool) {
		logger := b.runLogger(ctx)
		tracer := otel.Tracer(tracerName)
		ctx, span := tracer.Start(ctx, "rss.fetch")
		span.SetAttributes(attribute.String("feed.url", b.url))
		defer span.End()

		logger.Info("looking for rss entries", "origin", b.url)

		b.queue.Purge()
		raw, err := b.client.Get(ctx, b.url)
		if err != nil {
			failSpan(span, err)
			yield(core.Record{}, fmt.Errorf("fetch %s: %w", b.url, err))
			return
		}
		b.queue.Push(raw)

		entries, err := b.parser.Parse(raw)
		if err != nil {
			failSpan(span, err)
			yield(core.Record{}, err)
			return
		}
		if err := b.queue.Flush(); err != nil {
			failSpan(span, err)
			yield(core.Record{}, err)
			return
		}

		b.emit(logger, span, entries, yield)
	}
}

// FetchFromCache replays the raw payload archived by the last successful
// Fetch. It never touches the network and never writes the store, so two
// replays in a row yield identical records.
func (b *Backend) FetchFromCache(ctx context.Context) core.Stream {
	return func(yield func(core.Record, error) bool) {
		logger := b.runLogger(ctx)
		tracer := otel.Tracer(tracerName)
		_, span := tracer.Start(ctx, "rss.fetch_from_cache")
		span.SetAttributes(attribute.String("feed.url", b.url))
		defer span.End()

		if b.store == nil {
			failSpan(span, core.ErrCacheUnavailable)
			yield(core.Record{}, core.ErrCacheUnavailable)
			return
		}

		logger.Info("retrieving cached rss entries", "origin", b.url)

		raw, err := b.store.Retrieve()
		if err != nil {
			failSpan(span, err)
			yield(core.Record{}, fmt.Errorf("retrieve cached payload: %w", err))
			return
		}
		entries, err := b.parser.Parse(raw)
		if err != nil {
			failSpan(span, err)
			yield(core.Record{}, err)
			return
		}

		b.emit(logger, span, entries, yield)
	}
}

// emit builds the envelope for each entry in order. An envelope failure ends
// the stream mid-way; records already yielded stand.
func (b *Backend) emit(logger *slog.Logger, span trace.Span, entries []feed.Entry, yield func(core.Record, error) bool) {
	emitted := 0
	for _, entry := range entries {
		rec, err := b.record(entry)
		if err != nil {
			failSpan(span, err)
			yield(core.Record{}, err)
			return
		}
		if !yield(rec, nil) {
			return
		}
		emitted++
	}
	span.SetAttributes(attribute.Int("feed.entries", emitted))
	logger.Info("total number of entries", "count", emitted, "origin", b.url)
}

func (b *Backend) record(entry feed.Entry) (core.Record, error) {
	id, err := Identifier(entry)
	if err != nil {
		return core.Record{}, err
	}
	updatedOn, err := UpdatedOn(entry)
	if err != nil {
		return core.Record{}, err
	}
	return core.Record{
		BackendName:    BackendName,
		BackendVersion: BackendVersion,
		UUID:           core.ItemUUID(b.url, id),
		Origin:         b.url,
		Tag:            b.tag,
		Timestamp:      float64(time.Now().UnixNano()) / 1e9,
		UpdatedOn:      updatedOn,
		Category:       Category(entry),
		ID:             id,
		Entry:          entry,
	}, nil
}

func (b *Backend) runLogger(ctx context.Context) *slog.Logger {
	logger := b.logger
	if ctxLogger := core.LoggerFromContext(ctx); ctxLogger != nil {
		logger = ctxLogger
	}
	return logger.With("backend", BackendName)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
