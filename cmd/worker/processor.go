package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/niltonstano/storefront-orderflow/internal/crm"
	"github.com/niltonstano/storefront-orderflow/internal/orders"
)

// OrderGetter is the slice of the orders store the worker needs.
type OrderGetter interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// Processor drains CRM sync messages from SQS and pushes them to the CRM.
// Sync is idempotent on the CRM side (keyed by order id), so redelivered
// messages are safe to re-apply.
type Processor struct {
	orderStore OrderGetter
	syncer     crm.Syncer
}

// NewProcessor creates a worker processor.
func NewProcessor(orderStore OrderGetter, syncer crm.Syncer) *Processor {
	return &Processor{orderStore: orderStore, syncer: syncer}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: the queue redelivers; repeated failures go to the DLQ.
			slog.Error("crm sync failed", "err", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg crm.SyncMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	slog.Info("crm sync message received", "order_id", msg.OrderID, "status", msg.Status)

	// re-read the authoritative order so the CRM always sees current state,
	// not the state at publish time
	order, err := p.orderStore.Get(ctx, msg.OrderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			// should never happen: the event is published only after the order
			// is durable — DLQ if it does
			return fmt.Errorf("order not found: %s", msg.OrderID)
		}
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	msg.Status = string(order.Status)
	msg.Total = order.Total

	if err := p.syncer.SyncOrder(ctx, msg); err != nil {
		return fmt.Errorf("sync order %s: %w", msg.OrderID, err)
	}

	slog.Info("crm sync completed", "order_id", msg.OrderID)
	return nil
}
