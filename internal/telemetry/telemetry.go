// Package telemetry wraps OpenTelemetry metrics and tracing setup. The
// Meter/Tracer accessors follow a simple shape: a package-level name goes
// in, an instrument or span comes out. They delegate to the global otel
// providers and keep no state of their own; callers that register
// instruments guard that registration themselves (llmclient uses sync.Once).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the configured exporters. Callers should defer
// it from main().
type Shutdown func(context.Context) error

// Init wires up a meter provider and a tracer provider for serviceName. When
// otlpEndpoint is set, metrics are exported over OTLP/HTTP to it; otherwise
// metrics go to a stdout exporter. Traces always go to a stdout exporter,
// whether or not otlpEndpoint is set.
func Init(ctx context.Context, serviceName, otlpEndpoint string) (Shutdown, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var (
		mp *sdkmetric.MeterProvider
		tp *sdktrace.TracerProvider
	)

	if otlpEndpoint != "" {
		metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(otlpEndpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("telemetry: build otlp metric exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		)
	} else {
		metricExp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: build stdout metric exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		)
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
	}
	tp = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExp),
	)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			return err
		}
		return tp.Shutdown(ctx)
	}, nil
}

// Meter returns a named otel Meter.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Tracer returns a named otel Tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
