package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitWithExporterRecordsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitWithExporter("strideos-test", "v0", exp)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "syscall yield")
	span.End()

	spans := exp.GetSpans()
	require.NoError(t, shutdown(context.Background()))
	require.Len(t, spans, 1)
	assert.Equal(t, "syscall yield", spans[0].Name)
	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "strideos-test", service)
}

func TestInitWritesJSON(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Init(&buf, "strideos-test", "v0")
	require.NoError(t, err)
	_, span := otel.Tracer("test").Start(context.Background(), "syscall mmap")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "syscall mmap")
}
