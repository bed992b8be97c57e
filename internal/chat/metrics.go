package chat

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "stock-chat/internal/chat"

var tracer trace.Tracer = otel.Tracer(instrumentationName)

type metrics struct {
	published      metric.Int64Counter
	publishErrors  metric.Int64Counter
	deliveries     metric.Int64Counter
	droppedDeliver metric.Int64Counter
	sessions       metric.Int64UpDownCounter
	joins          metric.Int64Counter
	reaped         metric.Int64Counter
}

// newMetrics registers instruments on the global meter provider. Instrument
// creation only fails on invalid names, so errors fall back to no-op instruments.
func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}
	m.published, _ = meter.Int64Counter("chat.messages.published",
		metric.WithDescription("Messages persisted and broadcast"))
	m.publishErrors, _ = meter.Int64Counter("chat.publish.errors",
		metric.WithDescription("Publish calls rejected or failed"))
	m.deliveries, _ = meter.Int64Counter("chat.deliveries",
		metric.WithDescription("Messages handed to session outbound queues"))
	m.droppedDeliver, _ = meter.Int64Counter("chat.deliveries.dropped",
		metric.WithDescription("Deliveries to sessions that were gone or full"))
	m.sessions, _ = meter.Int64UpDownCounter("chat.sessions.active",
		metric.WithDescription("Live sessions"))
	m.joins, _ = meter.Int64Counter("chat.joins",
		metric.WithDescription("Topic joins"))
	m.reaped, _ = meter.Int64Counter("chat.sessions.reaped",
		metric.WithDescription("Sessions disconnected for inactivity"))
	return m
}

func topicAttr(topic string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("topic", topic))
}

func (m *metrics) add(ctx context.Context, c metric.Int64Counter, n int64, opts ...metric.AddOption) {
	if c == nil {
		return
	}
	c.Add(ctx, n, opts...)
}
