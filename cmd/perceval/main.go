package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ElvertMora/grimoirelab-perceval/internal/backends/rss"
	"github.com/ElvertMora/grimoirelab-perceval/internal/cache"
	"github.com/ElvertMora/grimoirelab-perceval/internal/config"
	"github.com/ElvertMora/grimoirelab-perceval/internal/core"
	fetchimpl "github.com/ElvertMora/grimoirelab-perceval/internal/fetch/impl"
	"github.com/ElvertMora/grimoirelab-perceval/internal/filter"
	"github.com/ElvertMora/grimoirelab-perceval/internal/observability/otelx"
	"github.com/ElvertMora/grimoirelab-perceval/internal/output"
	"github.com/ElvertMora/grimoirelab-perceval/internal/runner"
)

func main() {
	env := config.LoadEnv()

	tag := flag.String("tag", env.Tag, "label attached to every record (defaults to the feed url)")
	outputPath := flag.String("output", env.Output, "file records are written to (default stdout)")
	configPath := flag.String("config", env.ConfigPath, "path to the settings file")
	cachePath := flag.String("cache-path", env.CacheRoot, "directory cached payloads live under")
	noCache := flag.Bool("no-cache", false, "do not store fetched payloads")
	cleanCache := flag.Bool("clean-cache", false, "drop the cached payloads before fetching")
	fetchCache := flag.Bool("fetch-cache", false, "replay records from the cache instead of fetching")
	filterExpr := flag.String("filter", "", "boolean expression records must match to be written")
	retries := flag.Int("retries", env.Retries, "extra attempts when a fetch fails at the network layer")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	feedURL := flag.Arg(0)

	doc, err := loadSettings(*configPath)
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}
	env.Apply(&doc)
	if err := doc.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	// records go to stdout, so logs go to stderr
	logger := slog.New(doc.Log.Handler(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		log.Fatalf("failed to initialize otel: %v", err)
	}
	if shutdown != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	var store cache.Store
	if !*noCache {
		root := doc.Cache.Root
		if *cachePath != "" {
			root = *cachePath
		}
		if root == "" {
			root = cache.DefaultRoot()
		}
		store, err = cache.NewStore(doc.Cache.Backend, cache.PathForOrigin(root, feedURL))
		if err != nil {
			log.Fatalf("failed to open cache: %v", err)
		}
		defer store.Close()

		switch {
		case *cleanCache:
			if err := store.Clean(); err != nil {
				log.Fatalf("failed to clean cache: %v", err)
			}
			logger.Info("cache cleaned", "origin", feedURL)
		case !*fetchCache:
			// keep a copy of the current payload so a failed run can be undone
			if err := store.Backup(); err != nil {
				log.Fatalf("failed to back up cache: %v", err)
			}
		}
	}

	var matcher runner.Matcher
	if *filterExpr != "" {
		f, err := filter.New(*filterExpr)
		if err != nil {
			log.Fatalf("invalid filter: %v", err)
		}
		matcher = f
	}

	client := fetchimpl.NewHTTPClient(doc.HTTP.Timeout.Std(), doc.HTTP.UserAgent)
	backend, err := rss.New(feedURL, client, store, *tag, logger)
	if err != nil {
		log.Fatalf("failed to build backend: %v", err)
	}

	out, closeOut, err := openOutput(*outputPath)
	if err != nil {
		log.Fatalf("failed to open output: %v", err)
	}
	defer closeOut()

	result, err := runner.New(logger).Run(ctx, backend, output.NewWriter(out), runner.Options{
		FromCache: *fetchCache,
		Store:     store,
		Filter:    matcher,
		Retries:   *retries,
	})
	if err != nil {
		if errors.Is(err, core.ErrCacheUnavailable) {
			log.Fatalf("run failed: %v (did you fetch with -no-cache?)", err)
		}
		log.Fatalf("run failed after %d records: %v", result.Written, err)
	}
}

// loadSettings reads the settings file. An explicit path must exist; the
// default path is optional.
func loadSettings(path string) (config.Document, error) {
	if path != "" {
		return config.Load(path)
	}
	defaultPath := filepath.Join(".", "perceval.yaml")
	doc, err := config.Load(defaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return doc, err
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] URL\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(flag.CommandLine.Output(), "Fetch entries from the RSS or Atom feed at URL and write them as JSON\nrecords, one per line.\n\nFlags:\n")
	flag.PrintDefaults()
}
