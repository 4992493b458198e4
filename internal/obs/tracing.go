package obs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/noah-isme/storefront-rewards/internal/config"
)

// Tracing describes the tracer provider of one storefront process.
type Tracing struct {
	Service     string
	Version     string
	Environment string
	Exporter    string
	Endpoint    string
	Ratio       float64
}

// TracingFromConfig maps OBS_* settings onto a Tracing for the named process
// (storefront-api, storefront-worker).
func TracingFromConfig(cfg *config.Config, service string) Tracing {
	return Tracing{
		Service:     service,
		Version:     cfg.AppVersion,
		Environment: cfg.AppEnv,
		Exporter:    cfg.TracingExporter,
		Endpoint:    cfg.OTLPEndpoint,
		Ratio:       cfg.TracingSampleRatio,
	}
}

func (t Tracing) exporterName() string {
	name := strings.ToLower(strings.TrimSpace(t.Exporter))
	if name == "" {
		return "otlp"
	}
	return name
}

// Sampler samples root spans by ratio and otherwise follows the caller, so a
// trace started at the gateway stays whole through cart, redeem and checkout.
func (t Tracing) Sampler() sdktrace.Sampler {
	ratio := t.Ratio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Provider builds a tracer provider that batches spans into exp.
func (t Tracing) Provider(ctx context.Context, exp sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(t.Service),
			semconv.ServiceVersionKey.String(t.Version),
			semconv.DeploymentEnvironmentKey.String(t.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(t.Sampler()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

// Start installs the global tracer provider and W3C propagators and returns
// its shutdown. The "none" exporter installs nothing.
func (t Tracing) Start(ctx context.Context) (func(context.Context) error, error) {
	var exp sdktrace.SpanExporter
	switch name := t.exporterName(); name {
	case "none", "noop", "disabled":
		return func(context.Context) error { return nil }, nil
	case "otlp":
		var opts []otlptracehttp.Option
		if endpoint := strings.TrimSpace(t.Endpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		}
		otlp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		exp = otlp
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", name)
	}
	tp, err := t.Provider(ctx, exp)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
