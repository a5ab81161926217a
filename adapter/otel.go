// Package adapter connects vecshm components to process-wide observability
// providers.
package adapter

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/vecshm/pkg/shm"
)

const instrumentationName = "github.com/srediag/vecshm"

// OTel returns a meter and tracer from the global OpenTelemetry providers.
// Until the host installs an SDK both are no-ops.
func OTel() (metric.Meter, trace.Tracer) {
	return otel.GetMeterProvider().Meter(instrumentationName),
		otel.GetTracerProvider().Tracer(instrumentationName)
}

// WithOTel fills unset Meter and Tracer fields of opts from the global
// providers.
func WithOTel(opts shm.OpenOptions) shm.OpenOptions {
	meter, tracer := OTel()
	if opts.Meter == nil {
		opts.Meter = meter
	}
	if opts.Tracer == nil {
		opts.Tracer = tracer
	}
	return opts
}
