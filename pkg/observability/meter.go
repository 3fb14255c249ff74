package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Meter returns the named meter from the global MeterProvider. Like
// Tracer, this runs against the default no-op provider until an operator
// configures one, the same fallback hector's own observability package
// leaves to its caller.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
