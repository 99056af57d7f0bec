package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-ticket-payments/internal/adapters/rabbit"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
)

// Dispatcher publishes post-commit, user-visible side effects. It is
// fire-and-forget relative to the financial state: a publish failure is
// logged and dropped, never propagated, so it can never roll back a
// committed transaction.
type Dispatcher struct {
	pub    *rabbit.Publisher
	logger observability.Logger
}

func NewDispatcher(pub *rabbit.Publisher, logger observability.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, logger: logger}
}

func (d *Dispatcher) Notify(ctx context.Context, eventType string, payload map[string]interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.WithField("event_type", eventType).Error("failed to encode notification", err)
		return
	}
	msg := amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        body,
	}
	if err := d.pub.Publish(ctx, eventType, msg); err != nil {
		d.logger.WithField("event_type", eventType).Error("failed to publish notification", err)
		observability.NotifyFailures.Inc()
	}
}
