package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ElvertMora/grimoirelab-perceval/internal/cache"
)

// Document is the on-disk settings file. Every field has a working default,
// so an empty file (or no file at all) is a valid configuration.
type Document struct {
	HTTP  HTTPConfig  `yaml:"http,omitempty"`
	Cache CacheConfig `yaml:"cache,omitempty"`
	Log   LogConfig   `yaml:"log,omitempty"`
}

// HTTPConfig controls the feed client.
type HTTPConfig struct {
	Timeout   Duration `yaml:"timeout,omitempty"`
	UserAgent string   `yaml:"user_agent,omitempty"`
}

// CacheConfig controls where fetched payloads are kept.
type CacheConfig struct {
	// Root is the directory feed caches live under. Empty means the
	// per-user default.
	Root    string `yaml:"root,omitempty"`
	Backend string `yaml:"backend,omitempty"`
}

// LogConfig controls the slog handler the process installs.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Duration accepts Go duration syntax in yaml fields ("30s", "2m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the settings used when no file and no overrides are given.
func Default() Document {
	return Document{
		HTTP: HTTPConfig{
			Timeout:   Duration(30 * time.Second),
			UserAgent: "grimoirelab-perceval/0.1",
		},
		Cache: CacheConfig{
			Backend: cache.BackendFiles,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the settings file at path over the defaults. Fields the file
// does not mention keep their default values.
func Load(path string) (Document, error) {
	doc := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse settings file: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return doc, err
	}
	return doc, nil
}

// Validate performs validation on the settings document.
func (d *Document) Validate() error {
	if d.HTTP.Timeout.Std() <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}

	switch d.Cache.Backend {
	case "", cache.BackendFiles, cache.BackendSQLite, cache.BackendBadger:
	default:
		return fmt.Errorf("unknown cache backend %q (expected %s, %s or %s)",
			d.Cache.Backend, cache.BackendFiles, cache.BackendSQLite, cache.BackendBadger)
	}

	switch strings.ToLower(d.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", d.Log.Level)
	}

	switch strings.ToLower(d.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", d.Log.Format)
	}

	return nil
}

// SlogLevel maps the configured level onto slog's.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler builds the slog handler the configuration asks for, writing to w.
func (l LogConfig) Handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.ToLower(l.Format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
