// Package otelx wires the OpenTelemetry SDK for the process. Tracing is
// opt-in: when it is disabled Init is a no-op and the tracer provider stays
// the global noop one.
package otelx

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/ElvertMora/grimoirelab-perceval/internal/config"
)

const defaultServiceName = "perceval-rss"

// Init installs the global tracer provider and propagators. The returned
// shutdown function flushes pending spans; it is nil when tracing is
// disabled.
func Init(ctx context.Context, logger *slog.Logger, cfg config.OTelEnvConfig) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return nil, nil
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	protocol := resolveProtocol(cfg.Protocol)
	endpoint := resolveEndpoint(cfg.Endpoint, protocol)

	exporter, err := newExporter(ctx, protocol, endpoint, cfg.Insecure, cfg.Headers)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info(
		"otel initialized",
		"service_name", serviceName,
		"otlp_endpoint", endpoint,
		"otlp_protocol", protocol,
		"sample_ratio", cfg.SampleRatio,
	)

	return provider.Shutdown, nil
}

func newExporter(ctx context.Context, protocol, endpoint string, insecure bool, headers map[string]string) (*otlptrace.Exporter, error) {
	switch protocol {
	case "http/protobuf":
		opts := []otlptracehttp.Option{}
		if strings.Contains(endpoint, "://") {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(headers))
		}
		return otlptracehttp.New(ctx, opts...)
	case "grpc":
		// the grpc exporter wants host:port, not a URL
		if strings.Contains(endpoint, "://") {
			u, err := url.Parse(endpoint)
			if err != nil {
				return nil, fmt.Errorf("parse OTEL_EXPORTER_OTLP_ENDPOINT: %w", err)
			}
			endpoint = u.Host
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(headers))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTEL_EXPORTER_OTLP_PROTOCOL %q (expected grpc or http/protobuf)", protocol)
	}
}

func resolveProtocol(raw string) string {
	p := strings.ToLower(strings.TrimSpace(raw))
	switch p {
	case "":
		return "grpc"
	case "http":
		return "http/protobuf"
	default:
		return p
	}
}

func resolveEndpoint(raw, protocol string) string {
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	if protocol == "http/protobuf" {
		return "localhost:4318"
	}
	return "localhost:4317"
}
