package lambda

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dwsmith1983/releasepub/internal/config"
)

// Telemetry owns the installed OpenTelemetry providers. The zero value is a
// no-op, used when no collector endpoint is configured.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// SetupTelemetry installs OTLP gRPC trace and metric exporters as the global
// providers. It does nothing when cfg.OTLPEndpoint is empty.
func SetupTelemetry(ctx context.Context, cfg config.TelemetryConfig) (*Telemetry, error) {
	if cfg.OTLPEndpoint == "" {
		return &Telemetry{}, nil
	}

	var (
		traceOpts  []otlptracegrpc.Option
		metricOpts []otlpmetricgrpc.Option
	)
	if strings.Contains(cfg.OTLPEndpoint, "://") {
		traceOpts = append(traceOpts, otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint))
	} else {
		// Bare host:port is the sidecar collector form.
		traceOpts = append(traceOpts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint), otlpmetricgrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	t := &Telemetry{
		tp: sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res)),
		mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)), sdkmetric.WithResource(res)),
	}
	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)
	return t, nil
}

// Enabled reports whether exporters are installed.
func (t *Telemetry) Enabled() bool { return t != nil && t.tp != nil }

// Flush exports buffered spans and metrics. Lambda handlers call it before
// returning since the sandbox may freeze afterwards.
func (t *Telemetry) Flush(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return errors.Join(t.tp.ForceFlush(ctx), t.mp.ForceFlush(ctx))
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return errors.Join(t.tp.Shutdown(ctx), t.mp.Shutdown(ctx))
}
