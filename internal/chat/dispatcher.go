package chat

import (
	"context"

	"stock-chat/backend/internal/models"
	"stock-chat/backend/internal/store"
	"stock-chat/backend/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher persists published messages and fans them out to topic subscribers
type Dispatcher struct {
	sessions *SessionManager
	store    store.Store
	registry *Registry
	locks    *topicLocks
	out      Outbound
	log      *logger.Logger
	metrics  *metrics
}

// NewDispatcher shares the manager's store, registry, transport and topic locks
func NewDispatcher(sessions *SessionManager) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		store:    sessions.store,
		registry: sessions.registry,
		locks:    sessions.locks,
		out:      sessions.out,
		log:      sessions.log.WithComponent("dispatcher"),
		metrics:  sessions.metrics,
	}
}

// Publish appends content to topic on behalf of the session and broadcasts the
// stored message to every subscriber, the publisher included. Nothing is
// broadcast when Append fails.
func (d *Dispatcher) Publish(ctx context.Context, sessionID, topic, content string) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.Publish", trace.WithAttributes(attribute.String("chat.topic", topic)))
	defer span.End()

	identity, err := d.sessions.Identity(sessionID)
	if err != nil {
		d.metrics.add(ctx, d.metrics.publishErrors, 1)
		return models.Message{}, err
	}

	// Append and fan-out share the topic lock so per-topic store order is broadcast order.
	unlock := d.locks.Lock(store.NormalizeTopic(topic))
	defer unlock()

	msg, err := d.store.Append(ctx, topic, identity, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		d.metrics.add(ctx, d.metrics.publishErrors, 1)
		return models.Message{}, err
	}

	delivered := 0
	publisherSubscribed := false
	for _, sid := range d.registry.Subscribers(msg.Topic) {
		if sid == sessionID {
			publisherSubscribed = true
		}
		if d.deliver(ctx, sid, msg) {
			delivered++
		}
	}
	if !publisherSubscribed && d.deliver(ctx, sessionID, msg) {
		delivered++
	}

	d.metrics.add(ctx, d.metrics.published, 1, topicAttr(msg.Topic))
	d.metrics.add(ctx, d.metrics.deliveries, int64(delivered), topicAttr(msg.Topic))
	span.SetAttributes(attribute.Int64("chat.seq", msg.Seq), attribute.Int("chat.delivered", delivered))
	return msg, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sessionID string, msg models.Message) bool {
	if err := d.out.Deliver(sessionID, msg); err != nil {
		d.metrics.add(ctx, d.metrics.droppedDeliver, 1, topicAttr(msg.Topic))
		d.log.Debug("Delivery dropped", "session_id", sessionID, "topic", msg.Topic, "error", err.Error())
		return false
	}
	return true
}

// History serves the synchronous backlog read, independent of any session
func (d *Dispatcher) History(ctx context.Context, topic string, limit int) ([]models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.History", trace.WithAttributes(attribute.String("chat.topic", topic)))
	defer span.End()
	return d.store.History(ctx, topic, limit)
}
