package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/niltonstano/storefront-orderflow/internal/catalog"
	"github.com/niltonstano/storefront-orderflow/internal/events"
	"github.com/niltonstano/storefront-orderflow/internal/idempotency"
	"github.com/niltonstano/storefront-orderflow/internal/orders"
)

type fakeOrderStore struct {
	byID      map[string]orders.Order
	createErr error
	creates   int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{byID: map[string]orders.Order{}}
}

func (f *fakeOrderStore) Create(ctx context.Context, order orders.Order) error {
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	f.byID[order.OrderID] = order
	return nil
}

func (f *fakeOrderStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	o, ok := f.byID[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return &o, nil
}

func (f *fakeOrderStore) GetByIdempotencyKey(ctx context.Context, key string) (*orders.Order, error) {
	for _, o := range f.byID {
		if o.IdempotencyKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, orders.ErrNotFound
}

type fakeGuard struct {
	decision  idempotency.Decision
	record    *idempotency.Record
	beginErr  error
	begins    int
	completes int
	fails     int
	lastNote  string
}

func (f *fakeGuard) Begin(ctx context.Context, key, orderID string) (idempotency.Decision, *idempotency.Record, error) {
	f.begins++
	if f.beginErr != nil {
		return 0, nil, f.beginErr
	}
	return f.decision, f.record, nil
}

func (f *fakeGuard) Complete(ctx context.Context, key, orderID, responseBody string, responseStatus int) error {
	f.completes++
	return nil
}

func (f *fakeGuard) Fail(ctx context.Context, key, note string) error {
	f.fails++
	f.lastNote = note
	return nil
}

type fakeCatalog struct {
	products map[string]catalog.Product
	err      error
}

func (f *fakeCatalog) Product(ctx context.Context, productID string) (*catalog.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakeBus) Publish(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func stockedCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]catalog.Product{
		"p1": {ProductID: "p1", Name: "Widget", Price: 10.00, Stock: 10},
		"p2": {ProductID: "p2", Name: "Gadget", Price: 3.50, Stock: 1},
	}}
}

func validInput() Input {
	return Input{
		IdempotencyKey: "11111111-1111-1111-1111-111111111111",
		Items:          []CartLine{{ProductID: "p1", Quantity: 2}},
		Address:        "1 Main St",
		PostalCode:     "01310-100",
		Shipping:       orders.Shipping{Service: "standard", Price: 5.00, DeadlineDays: 5, Company: "correios"},
		DeclaredTotal:  25.00,
		CustomerID:     "cust_1",
		CustomerEmail:  "buyer@example.com",
	}
}

func newTestService(store *fakeOrderStore, guard *fakeGuard, cat *fakeCatalog, bus Publisher) *Service {
	s := NewService(store, guard, cat, bus)
	s.nowFunc = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	s.newID = func() string { return "order-1" }
	return s
}

func TestCheckout_Success(t *testing.T) {
	store := newFakeOrderStore()
	guard := &fakeGuard{decision: idempotency.Proceed}
	bus := &fakeBus{}
	svc := newTestService(store, guard, stockedCatalog(), bus)

	res, err := svc.Checkout(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if res.Replayed {
		t.Fatal("fresh checkout must not be marked replayed")
	}
	if res.Order.Status != orders.StatusPending {
		t.Fatalf("expected PENDING, got %s", res.Order.Status)
	}
	if res.Order.Total != 25.00 {
		t.Fatalf("expected total 25.00, got %v", res.Order.Total)
	}
	if len(res.Order.Items) != 1 || res.Order.Items[0].UnitPrice != 10.00 {
		t.Fatalf("expected catalog-priced items, got %+v", res.Order.Items)
	}

	if store.creates != 1 {
		t.Fatalf("expected one create, got %d", store.creates)
	}
	if guard.completes != 1 {
		t.Fatalf("expected guard completed once, got %d", guard.completes)
	}
	if len(bus.events) != 1 || bus.events[0].Name != events.OrderCreated {
		t.Fatalf("expected one order-created event, got %+v", bus.events)
	}
	published, ok := bus.events[0].Payload.(orders.Order)
	if !ok || published.OrderID != "order-1" {
		t.Fatalf("event payload should carry the persisted order, got %+v", bus.events[0].Payload)
	}
}

func TestCheckout_PriceMismatch(t *testing.T) {
	store := newFakeOrderStore()
	guard := &fakeGuard{decision: idempotency.Proceed}
	bus := &fakeBus{}
	svc := newTestService(store, guard, stockedCatalog(), bus)

	in := validInput()
	in.DeclaredTotal = 19.99

	_, err := svc.Checkout(context.Background(), in)
	var mismatch *PriceMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected PriceMismatchError, got %v", err)
	}
	if mismatch.Computed != 25.00 {
		t.Fatalf("expected computed total 25.00, got %v", mismatch.Computed)
	}
	if guard.begins != 0 || store.creates != 0 || len(bus.events) != 0 {
		t.Fatal("price mismatch must not touch the guard, the store or the bus")
	}
}

func TestCheckout_ToleratesSubCentDrift(t *testing.T) {
	store := newFakeOrderStore()
	guard := &fakeGuard{decision: idempotency.Proceed}
	svc := newTestService(store, guard, stockedCatalog(), &fakeBus{})

	in := validInput()
	in.DeclaredTotal = 25.001

	if _, err := svc.Checkout(context.Background(), in); err != nil {
		t.Fatalf("sub-cent drift should round to the same total: %v", err)
	}
}

func TestCheckout_InvalidCart(t *testing.T) {
	tests := []struct {
		name   string
		items  []CartLine
		reason string
	}{
		{"empty cart", nil, ""},
		{"zero quantity", []CartLine{{ProductID: "p1", Quantity: 0}}, ReasonBadQuantity},
		{"negative quantity", []CartLine{{ProductID: "p1", Quantity: -1}}, ReasonBadQuantity},
		{"unknown product", []CartLine{{ProductID: "ghost", Quantity: 1}}, ReasonUnknownProduct},
		{"insufficient stock", []CartLine{{ProductID: "p2", Quantity: 5}}, ReasonInsufficientStock},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeOrderStore()
			guard := &fakeGuard{decision: idempotency.Proceed}
			svc := newTestService(store, guard, stockedCatalog(), &fakeBus{})

			in := validInput()
			in.Items = tc.items

			_, err := svc.Checkout(context.Background(), in)
			var invalid *InvalidCartError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidCartError, got %v", err)
			}
			if tc.reason != "" {
				if len(invalid.Lines) != 1 || invalid.Lines[0].Reason != tc.reason {
					t.Fatalf("expected reason %q, got %+v", tc.reason, invalid.Lines)
				}
			}
			if guard.begins != 0 || store.creates != 0 {
				t.Fatal("invalid cart must be rejected before any mutation")
			}
		})
	}
}

func TestCheckout_CollectsAllLineProblems(t *testing.T) {
	svc := newTestService(newFakeOrderStore(), &fakeGuard{decision: idempotency.Proceed}, stockedCatalog(), &fakeBus{})

	in := validInput()
	in.Items = []CartLine{
		{ProductID: "ghost", Quantity: 1},
		{ProductID: "p1", Quantity: -2},
	}

	_, err := svc.Checkout(context.Background(), in)
	var invalid *InvalidCartError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidCartError, got %v", err)
	}
	if len(invalid.Lines) != 2 {
		t.Fatalf("expected both line problems reported, got %+v", invalid.Lines)
	}
}

func TestCheckout_ReplaysCompletedKey(t *testing.T) {
	store := newFakeOrderStore()
	existing := orders.Order{
		OrderID:        "order-prev",
		IdempotencyKey: validInput().IdempotencyKey,
		Status:         orders.StatusPending,
		Total:          25.00,
	}
	store.byID[existing.OrderID] = existing

	body, _ := json.Marshal(existing.Projection())
	guard := &fakeGuard{
		decision: idempotency.AlreadyCompleted,
		record: &idempotency.Record{
			IdempotencyKey: existing.IdempotencyKey,
			Status:         idempotency.StatusCompleted,
			OrderID:        existing.OrderID,
			ResponseBody:   string(body),
			ResponseStatus: http.StatusCreated,
		},
	}
	bus := &fakeBus{}
	svc := newTestService(store, guard, stockedCatalog(), bus)

	res, err := svc.Checkout(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !res.Replayed {
		t.Fatal("expected replayed result")
	}
	if res.Order.OrderID != "order-prev" {
		t.Fatalf("replay must return the original order, got %s", res.Order.OrderID)
	}
	if res.ResponseStatus != http.StatusCreated || !strings.Contains(res.ResponseBody, "order-prev") {
		t.Fatalf("expected stored response replayed, got %d %q", res.ResponseStatus, res.ResponseBody)
	}
	if store.creates != 0 || guard.completes != 0 || len(bus.events) != 0 {
		t.Fatal("replay must not create, complete or publish again")
	}
}

func TestCheckout_InFlightConflicts(t *testing.T) {
	store := newFakeOrderStore()
	guard := &fakeGuard{decision: idempotency.InFlight}
	svc := newTestService(store, guard, stockedCatalog(), &fakeBus{})

	_, err := svc.Checkout(context.Background(), validInput())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if store.creates != 0 {
		t.Fatal("in-flight key must not create an order")
	}
}

func TestCheckout_GuardUnavailable(t *testing.T) {
	guard := &fakeGuard{beginErr: errors.New("dynamodb down")}
	svc := newTestService(newFakeOrderStore(), guard, stockedCatalog(), &fakeBus{})

	_, err := svc.Checkout(context.Background(), validInput())
	if !errors.Is(err, orders.ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
}

func TestCheckout_LostRaceResolvesToWinner(t *testing.T) {
	store := newFakeOrderStore()
	winner := orders.Order{
		OrderID:        "order-winner",
		IdempotencyKey: validInput().IdempotencyKey,
		Status:         orders.StatusPending,
	}
	store.byID[winner.OrderID] = winner
	store.createErr = orders.ErrIdempotencyConflict

	guard := &fakeGuard{decision: idempotency.Proceed}
	bus := &fakeBus{}
	svc := newTestService(store, guard, stockedCatalog(), bus)

	res, err := svc.Checkout(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !res.Replayed || res.Order.OrderID != "order-winner" {
		t.Fatalf("expected winner's order replayed, got %+v", res)
	}
	if len(bus.events) != 0 {
		t.Fatal("loser must not publish an event")
	}
}

func TestCheckout_LostRaceWinnerNotYetDurable(t *testing.T) {
	store := newFakeOrderStore()
	store.createErr = orders.ErrIdempotencyConflict
	svc := newTestService(store, &fakeGuard{decision: idempotency.Proceed}, stockedCatalog(), &fakeBus{})

	_, err := svc.Checkout(context.Background(), validInput())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while winner is still in flight, got %v", err)
	}
}

func TestCheckout_CreateFailureResetsGuard(t *testing.T) {
	store := newFakeOrderStore()
	store.createErr = errors.New("provisioned throughput exceeded")
	guard := &fakeGuard{decision: idempotency.Proceed}
	bus := &fakeBus{}
	svc := newTestService(store, guard, stockedCatalog(), bus)

	_, err := svc.Checkout(context.Background(), validInput())
	if err == nil {
		t.Fatal("expected create failure to surface")
	}
	if guard.fails != 1 {
		t.Fatalf("expected guard reset after create failure, got %d", guard.fails)
	}
	if !strings.Contains(guard.lastNote, "order create failed") {
		t.Fatalf("unexpected failure note: %q", guard.lastNote)
	}
	if guard.completes != 0 || len(bus.events) != 0 {
		t.Fatal("failed create must not complete the guard or publish")
	}
}

// Checkout runs against a real dispatcher here: a failing listener must not
// leak into the caller's result.
func TestCheckout_ListenerFailureDoesNotAffectResult(t *testing.T) {
	store := newFakeOrderStore()
	guard := &fakeGuard{decision: idempotency.Proceed}
	svc := newTestService(store, guard, stockedCatalog(), nil)

	d := events.NewDispatcher(events.Config{Workers: 1, QueueSize: 8})
	svc.bus = d

	var mu sync.Mutex
	healthyRan := false
	d.Subscribe(events.OrderCreated, "failing", func(ctx context.Context, ev events.Event) error {
		return errors.New("smtp unreachable")
	})
	d.Subscribe(events.OrderCreated, "healthy", func(ctx context.Context, ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		healthyRan = true
		return nil
	})

	res, err := svc.Checkout(context.Background(), validInput())
	d.Close()

	if err != nil {
		t.Fatalf("listener failure leaked into checkout: %v", err)
	}
	if res.Order.Status != orders.StatusPending {
		t.Fatalf("expected PENDING order, got %s", res.Order.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if !healthyRan {
		t.Fatal("healthy listener should still have run")
	}
}
