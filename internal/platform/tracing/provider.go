package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Ramsey-B/fern/internal/platform/tracing/exporters"
)

// Provider owns the tracer provider lifecycle. It implements the startup
// dependency interface so it can be started and stopped with the rest of
// the service.
type Provider struct {
	serviceName string
	otlpConfig  exporters.OTLPConfig
	tp          *sdktrace.TracerProvider
}

func NewProvider(serviceName string, otlpConfig exporters.OTLPConfig) *Provider {
	return &Provider{
		serviceName: serviceName,
		otlpConfig:  otlpConfig,
	}
}

func (p *Provider) GetName() string {
	return "tracing"
}

func (p *Provider) DependsOn() []string {
	return nil
}

// Start builds the exporter and tracer provider, registers them globally,
// and sets the package tracer used by StartSpan.
func (p *Provider) Start(ctx context.Context) error {
	exporter, err := exporters.NewOTLPExporter(ctx, p.otlpConfig)
	if err != nil {
		return err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(p.serviceName)),
	)
	if err != nil {
		return err
	}

	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	SetTracer(otel.Tracer(p.serviceName))
	return nil
}

func (p *Provider) Stop(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}
