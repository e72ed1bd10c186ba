package otel

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Swind/go-async-runner/core"
	otelapi "go.opentelemetry.io/otel"
)

// TestProvider_ExportsRunnerSpans verifies runner spans reach the stdout exporter
// Given: a synchronous provider writing to a buffer
// When: a runner using its tracer executes one task
// Then: the buffer contains the runner span and its service name
func TestProvider_ExportsRunnerSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewProvider(Options{ServiceName: "span-test", Writer: &buf, Sync: true})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	runner := core.NewAsyncRunnerWithConfig(nil, &core.AsyncRunnerConfig{
		Name:   "traced",
		Tracer: p.Tracer(),
	})
	if _, err := runner.Run(func(ctx context.Context) {}, 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	runner.Join()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "AsyncRunner.Run") {
		t.Errorf("exported spans missing runner span: %s", out)
	}
	if !strings.Contains(out, "span-test") {
		t.Errorf("exported spans missing service name: %s", out)
	}
}

func TestProvider_Global(t *testing.T) {
	prev := otelapi.GetTracerProvider()
	defer otelapi.SetTracerProvider(prev)

	p, err := NewProvider(Options{Writer: &bytes.Buffer{}, Global: true})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	if otelapi.GetTracerProvider() != p.TracerProvider() {
		t.Error("global tracer provider was not installed")
	}
}
