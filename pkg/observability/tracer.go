// Package observability exposes the process-wide tracer used to annotate
// the core's request path. Grounded on kadirpekel/hector's
// pkg/observability/tracer.go GetTracer wrapper; this core does not carry
// hector's OTLP exporter/SDK wiring (no deployment target for it is named
// in SPEC_FULL.md), so spans run against the default no-op TracerProvider
// until an operator configures one via otel.SetTracerProvider — the same
// degrade-to-no-op behaviour hector's own tracer.go falls back to when
// tracing is disabled.
package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the named tracer from the global TracerProvider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
