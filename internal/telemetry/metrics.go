// Package telemetry holds the OpenTelemetry instruments of the sync engine.
// Instruments come from the global meter provider; when none is installed
// they are no-ops.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "omnipos.inventory-sync"

type Metrics struct {
	deltas       metric.Int64Counter
	decodeErrors metric.Int64Counter
	reconnects   metric.Int64Counter
	mutations    metric.Int64Counter
}

func New() (*Metrics, error) {
	return NewWithMeter(otel.Meter(meterName))
}

func NewWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.deltas, err = meter.Int64Counter("inventory.deltas",
		metric.WithDescription("Deltas handled by the reconciler, by outcome"),
		metric.WithUnit("{delta}"),
	)
	if err != nil {
		return nil, err
	}
	m.decodeErrors, err = meter.Int64Counter("inventory.stream.decode_errors",
		metric.WithDescription("Push messages dropped because they could not be decoded"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}
	m.reconnects, err = meter.Int64Counter("inventory.stream.reconnects",
		metric.WithDescription("Push connection re-opens after a disconnect"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}
	m.mutations, err = meter.Int64Counter("inventory.mutations",
		metric.WithDescription("Optimistic mutations by kind and outcome"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Nop is safe for tests and for callers that do not care about metrics.
func Nop() *Metrics { return nil }

func (m *Metrics) Delta(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	m.deltas.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) DecodeError(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.decodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
}

func (m *Metrics) Reconnect(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
}

func (m *Metrics) Mutation(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
