package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/niltonstano/storefront-orderflow/internal/catalog"
	"github.com/niltonstano/storefront-orderflow/internal/events"
	"github.com/niltonstano/storefront-orderflow/internal/idempotency"
	"github.com/niltonstano/storefront-orderflow/internal/orders"
)

// OrderStore is the slice of the orders store the orchestrator needs.
type OrderStore interface {
	Create(ctx context.Context, order orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*orders.Order, error)
}

// Guard is the idempotency guard contract.
type Guard interface {
	Begin(ctx context.Context, key, orderID string) (idempotency.Decision, *idempotency.Record, error)
	Complete(ctx context.Context, key, orderID, responseBody string, responseStatus int) error
	Fail(ctx context.Context, key, note string) error
}

// Publisher is the event bus surface the orchestrator publishes on.
// *events.Dispatcher satisfies it.
type Publisher interface {
	Publish(ev events.Event)
}

// CartLine is one requested cart line: product id and quantity only; prices are
// always recomputed server-side.
type CartLine struct {
	ProductID string
	Quantity  int
}

// Input is a validated checkout request.
type Input struct {
	IdempotencyKey string
	Items          []CartLine
	Address        string
	PostalCode     string
	Shipping       orders.Shipping
	DeclaredTotal  float64
	CustomerID     string
	CustomerEmail  string
}

// Result is the checkout outcome. Replayed is true when the idempotency key had
// already completed: Order then describes the original order, and ResponseBody
// carries the original response payload when one was stored.
type Result struct {
	Order          orders.Order
	Replayed       bool
	ResponseBody   string
	ResponseStatus int
}

// Service turns a validated cart into a durable order exactly once per
// idempotency key and emits an order-created event after persistence.
type Service struct {
	store   OrderStore
	guard   Guard
	catalog catalog.Lookup
	bus     Publisher
	nowFunc func() time.Time
	newID   func() string
}

// NewService wires the orchestrator.
func NewService(store OrderStore, guard Guard, lookup catalog.Lookup, bus Publisher) *Service {
	return &Service{
		store:   store,
		guard:   guard,
		catalog: lookup,
		bus:     bus,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// Checkout validates and reprices the cart, claims the idempotency key, creates
// the order atomically, completes the guard record and publishes order-created.
// The event is published only after the order is durably persisted; listener
// failures never affect the returned result.
func (s *Service) Checkout(ctx context.Context, in Input) (*Result, error) {
	items, subtotal, err := s.priceCart(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	total := subtotal + in.Shipping.Price
	if cents(total) != cents(in.DeclaredTotal) {
		return nil, &PriceMismatchError{Declared: in.DeclaredTotal, Computed: total}
	}

	orderID := s.newID()
	decision, rec, err := s.guard.Begin(ctx, in.IdempotencyKey, orderID)
	if err != nil {
		return nil, depErr("idempotency guard", err)
	}
	switch decision {
	case idempotency.AlreadyCompleted:
		return s.replay(ctx, in.IdempotencyKey, rec)
	case idempotency.InFlight:
		return nil, ErrConflict
	}

	now := s.nowFunc().UTC()
	order := orders.Order{
		OrderID:        orderID,
		IdempotencyKey: in.IdempotencyKey,
		CustomerID:     in.CustomerID,
		CustomerEmail:  in.CustomerEmail,
		Items:          items,
		Address:        in.Address,
		PostalCode:     in.PostalCode,
		Shipping:       in.Shipping,
		Total:          total,
		Status:         orders.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, order); err != nil {
		if errors.Is(err, orders.ErrIdempotencyConflict) {
			// lost the race past begin: the store-level constraint is the final
			// backstop — resolve against the winning order
			return s.resolveLostRace(ctx, in.IdempotencyKey)
		}
		// reset the guard so the client can retry cleanly
		if failErr := s.guard.Fail(ctx, in.IdempotencyKey, fmt.Sprintf("order create failed: %v", err)); failErr != nil {
			slog.Warn("failed to reset idempotency record", "key", in.IdempotencyKey, "err", failErr)
		}
		return nil, err
	}

	responseBody, _ := json.Marshal(order.Projection())
	if err := s.guard.Complete(ctx, in.IdempotencyKey, orderID, string(responseBody), http.StatusCreated); err != nil {
		// order is durable; a stale in-flight record heals after the staleness window
		slog.Warn("failed to complete idempotency record", "key", in.IdempotencyKey, "order_id", orderID, "err", err)
	}

	s.bus.Publish(events.Event{Name: events.OrderCreated, Payload: order})

	return &Result{Order: order}, nil
}

// priceCart validates every line against the catalog and returns the priced
// lines plus their subtotal.
func (s *Service) priceCart(ctx context.Context, lines []CartLine) ([]orders.Item, float64, error) {
	if len(lines) == 0 {
		return nil, 0, &InvalidCartError{}
	}

	var (
		items    []orders.Item
		subtotal float64
		problems []LineProblem
	)
	for _, line := range lines {
		if line.Quantity <= 0 {
			problems = append(problems, LineProblem{ProductID: line.ProductID, Quantity: line.Quantity, Reason: ReasonBadQuantity})
			continue
		}
		product, err := s.catalog.Product(ctx, line.ProductID)
		if err != nil {
			return nil, 0, depErr("catalog lookup", err)
		}
		if product == nil {
			problems = append(problems, LineProblem{ProductID: line.ProductID, Quantity: line.Quantity, Reason: ReasonUnknownProduct})
			continue
		}
		if product.Stock < line.Quantity {
			problems = append(problems, LineProblem{ProductID: line.ProductID, Quantity: line.Quantity, Reason: ReasonInsufficientStock})
			continue
		}
		items = append(items, orders.Item{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: product.Price})
		subtotal += float64(line.Quantity) * product.Price
	}
	if len(problems) > 0 {
		return nil, 0, &InvalidCartError{Lines: problems}
	}
	return items, subtotal, nil
}

// replay returns the original outcome for a completed key without re-running
// side effects.
func (s *Service) replay(ctx context.Context, key string, rec *idempotency.Record) (*Result, error) {
	existing, err := s.store.Get(ctx, rec.OrderID)
	if err != nil {
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
		existing, err = s.store.GetByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, err
		}
	}
	return &Result{
		Order:          *existing,
		Replayed:       true,
		ResponseBody:   rec.ResponseBody,
		ResponseStatus: rec.ResponseStatus,
	}, nil
}

// resolveLostRace re-reads the order created by the concurrent winner of this
// idempotency key.
func (s *Service) resolveLostRace(ctx context.Context, key string) (*Result, error) {
	existing, err := s.store.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			// winner claimed the key but has not persisted yet
			return nil, ErrConflict
		}
		return nil, err
	}
	return &Result{Order: *existing, Replayed: true}, nil
}

func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func depErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, orders.ErrDependencyUnavailable, err)
}
