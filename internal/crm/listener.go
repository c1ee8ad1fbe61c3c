// Package crm keeps the CRM in sync with created orders. The in-process
// listener only forwards an order snapshot to the sync queue; the worker drains
// the queue and pushes to the CRM, so CRM latency and outages never touch the
// checkout path.
package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/niltonstano/storefront-orderflow/internal/events"
	"github.com/niltonstano/storefront-orderflow/internal/orders"
)

// SyncMessage is the payload forwarded to the CRM sync queue.
type SyncMessage struct {
	OrderID        string    `json:"order_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	CustomerID     string    `json:"customer_id"`
	CustomerEmail  string    `json:"customer_email"`
	Total          float64   `json:"total"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// QueuePublisher sends JSON payloads to a queue. *aws.Publisher satisfies it.
type QueuePublisher interface {
	SendJSON(ctx context.Context, payload interface{}, attributes map[string]string) error
}

// Listener forwards order-created events to the sync queue.
type Listener struct {
	publisher QueuePublisher
}

// NewListener builds the listener.
func NewListener(publisher QueuePublisher) *Listener {
	return &Listener{publisher: publisher}
}

// Handle implements events.Handler for order-created.
func (l *Listener) Handle(ctx context.Context, ev events.Event) error {
	order, ok := ev.Payload.(orders.Order)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for event %s", ev.Payload, ev.Name)
	}

	msg := SyncMessage{
		OrderID:        order.OrderID,
		IdempotencyKey: order.IdempotencyKey,
		CustomerID:     order.CustomerID,
		CustomerEmail:  order.CustomerEmail,
		Total:          order.Total,
		Status:         string(order.Status),
		OccurredAt:     order.CreatedAt,
	}
	attrs := map[string]string{
		"order_id": order.OrderID,
		"event":    ev.Name,
	}
	if err := l.publisher.SendJSON(ctx, msg, attrs); err != nil {
		return fmt.Errorf("enqueue crm sync: %w", err)
	}
	return nil
}
