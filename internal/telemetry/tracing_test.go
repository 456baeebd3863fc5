package telemetry

import (
	"bytes"
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitStdoutTracingInstallsProvidersAndExportsASpan(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitStdoutTracing("governance-gate-test", &buf)
	if err != nil {
		t.Fatalf("InitStdoutTracing: %v", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}()

	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	span.End()

	if err := providers.TracerProvider.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected the stdout exporter to have written the flushed span")
	}
}

func TestShutdownIsNilSafe(t *testing.T) {
	var p *Providers
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("expected nil-receiver Shutdown to be a no-op, got %v", err)
	}
}
