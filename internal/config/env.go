package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig carries the environment overrides. Zero values mean the variable
// was not set, so the settings file (or the built-in default) wins.
type EnvConfig struct {
	ConfigPath   string
	Tag          string
	Output       string
	CacheRoot    string
	CacheBackend string
	Retries      int
	HTTP         HTTPEnvConfig
	Log          LogEnvConfig
	OTel         OTelEnvConfig
}

type HTTPEnvConfig struct {
	Timeout   time.Duration
	UserAgent string
}

type LogEnvConfig struct {
	Level  string
	Format string
}

type OTelEnvConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

func LoadEnv() EnvConfig {
	otlpEndpoint := strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	return EnvConfig{
		ConfigPath:   strings.TrimSpace(envString("PERCEVAL_CONFIG", "")),
		Tag:          strings.TrimSpace(envString("PERCEVAL_TAG", "")),
		Output:       strings.TrimSpace(envString("PERCEVAL_OUTPUT", "")),
		CacheRoot:    strings.TrimSpace(envString("PERCEVAL_CACHE_PATH", "")),
		CacheBackend: strings.TrimSpace(envString("PERCEVAL_CACHE_BACKEND", "")),
		Retries:      envInt("PERCEVAL_RETRIES", 0),
		HTTP: HTTPEnvConfig{
			Timeout:   envDuration("PERCEVAL_HTTP_TIMEOUT", 0),
			UserAgent: strings.TrimSpace(envString("PERCEVAL_USER_AGENT", "")),
		},
		Log: LogEnvConfig{
			Level:  strings.ToLower(strings.TrimSpace(envString("PERCEVAL_LOG_LEVEL", ""))),
			Format: strings.ToLower(strings.TrimSpace(envString("PERCEVAL_LOG_FORMAT", ""))),
		},
		OTel: OTelEnvConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			ServiceName: strings.TrimSpace(envString("OTEL_SERVICE_NAME", "perceval-rss")),
			Endpoint:    otlpEndpoint,
			Protocol:    strings.ToLower(strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			Headers:     parseHeaders(envString("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", defaultInsecure(otlpEndpoint)),
			SampleRatio: clamp01(envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0)),
		},
	}
}

// Apply lays the environment overrides over the document. Only variables
// that were actually set change anything.
func (e EnvConfig) Apply(doc *Document) {
	if e.HTTP.Timeout > 0 {
		doc.HTTP.Timeout = Duration(e.HTTP.Timeout)
	}
	if e.HTTP.UserAgent != "" {
		doc.HTTP.UserAgent = e.HTTP.UserAgent
	}
	if e.CacheRoot != "" {
		doc.Cache.Root = e.CacheRoot
	}
	if e.CacheBackend != "" {
		doc.Cache.Backend = e.CacheBackend
	}
	if e.Log.Level != "" {
		doc.Log.Level = e.Log.Level
	}
	if e.Log.Format != "" {
		doc.Log.Format = e.Log.Format
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parseHeaders splits the OTLP header list format: "k1=v1,k2=v2".
func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// defaultInsecure guesses whether the exporter should skip TLS when the
// variable is not set: plain-http and local endpoints do.
func defaultInsecure(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return u.Scheme == "http"
	}
	return strings.HasPrefix(endpoint, "localhost:") ||
		strings.HasPrefix(endpoint, "127.0.0.1:") ||
		strings.HasPrefix(endpoint, "0.0.0.0:")
}
