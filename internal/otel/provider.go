// Package otel sets up the OpenTelemetry tracer provider the receiver exports frame spans through.
package otel

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/mrzor/vmdisplay-receiver/internal/config"
)

const exportTimeout = 10 * time.Second

// proxySettings returns the HTTP(S) proxies net/http will honour for the exporter.
func proxySettings() (httpProxy, httpsProxy string) {
	httpProxy = os.Getenv("HTTP_PROXY")
	if httpProxy == "" {
		httpProxy = os.Getenv("http_proxy")
	}
	httpsProxy = os.Getenv("HTTPS_PROXY")
	if httpsProxy == "" {
		httpsProxy = os.Getenv("https_proxy")
	}
	return httpProxy, httpsProxy
}

// InitProvider creates a tracer provider that batches spans to the OTLP/HTTP
// endpoint described by cfg. serviceVersion is recorded on the resource when set.
//
// The exporter connects lazily; an unreachable collector shows up as export
// errors, not as a failure here.
func InitProvider(cfg *config.OTELConfig, serviceVersion string) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	endpoint := cfg.GetEndpoint()

	log.Printf("OTEL Configuration:")
	log.Printf("  Service Name: %s", cfg.ServiceName)
	log.Printf("  Endpoint: %s", endpoint)
	if cfg.ResourceAttributes != "" {
		log.Printf("  Resource Attributes: %s", cfg.ResourceAttributes)
	}
	if httpProxy, httpsProxy := proxySettings(); httpProxy != "" || httpsProxy != "" {
		log.Printf("  Proxy: HTTP_PROXY=%q HTTPS_PROXY=%q", httpProxy, httpsProxy)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(exportTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	attrs := resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))
	resourceOpts := []resource.Option{attrs}
	if serviceVersion != "" {
		resourceOpts = append(resourceOpts, resource.WithAttributes(semconv.ServiceVersion(serviceVersion)))
	}
	if customAttrs := cfg.ParseResourceAttributes(); len(customAttrs) > 0 {
		resourceOpts = append(resourceOpts, resource.WithAttributes(customAttrs...))
	}

	res, err := resource.New(ctx, resourceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// ShutdownProvider flushes pending spans and shuts the provider down.
func ShutdownProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}
