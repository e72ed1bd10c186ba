// Package otel bootstraps an OpenTelemetry tracer provider for AsyncRunner spans.
package otel

import (
	"context"
	"fmt"
	"io"
	"os"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used by the runner.
const InstrumentationName = "github.com/Swind/go-async-runner"

// Options controls the stdout tracer provider.
type Options struct {
	// ServiceName becomes the service.name resource attribute. Defaults to "async-runner".
	ServiceName string

	// Writer receives exported spans. Defaults to os.Stdout.
	Writer io.Writer

	PrettyPrint bool

	// Sync exports every span when it ends instead of batching.
	Sync bool

	// Global installs the provider with otel.SetTracerProvider.
	Global bool
}

// Provider owns a tracer provider and its exporter.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds a tracer provider that writes spans through stdouttrace.
func NewProvider(opts Options) (*Provider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "async-runner"
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(opts.Writer)}
	if opts.PrettyPrint {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exp, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))

	var export sdktrace.TracerProviderOption
	if opts.Sync {
		export = sdktrace.WithSyncer(exp)
	} else {
		export = sdktrace.WithBatcher(exp)
	}

	tp := sdktrace.NewTracerProvider(export, sdktrace.WithResource(res))
	if opts.Global {
		otelapi.SetTracerProvider(tp)
	}
	return &Provider{tp: tp}, nil
}

// Tracer returns the tracer to put in AsyncRunnerConfig.Tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(InstrumentationName)
}

// TracerProvider exposes the underlying SDK provider.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.ForceFlush(ctx); err != nil {
		return fmt.Errorf("flush spans: %w", err)
	}
	return p.tp.Shutdown(ctx)
}
