package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Event names
const (
	OrderCreated = "order-created"
)

// Event is an immutable fact published on the bus. Payload is a snapshot taken
// at publish time; listeners must not rely on later mutations of the source.
type Event struct {
	Name    string
	Payload interface{}
}

// Handler consumes one event. A returned error (or panic) is contained at the
// dispatch boundary and never reaches the publisher.
type Handler func(ctx context.Context, ev Event) error

// FailureReporter receives contained listener failures for metrics.
type FailureReporter interface {
	ReportListenerFailure(ctx context.Context, event, listener string, err error)
}

type registration struct {
	listener string
	handler  Handler
}

// Dispatcher is an in-process publish/subscribe bus. It is an explicit registry
// object: constructed once at startup and passed by reference, never ambient
// global state. Published events are drained by a fixed pool of workers so
// listener latency and failures stay off the request path.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]registration

	queue    chan Event
	wg       sync.WaitGroup
	reporter FailureReporter

	closeOnce sync.Once
}

// Config tunes the dispatcher. Zero values get sane defaults.
type Config struct {
	Workers   int
	QueueSize int
	Reporter  FailureReporter // optional
}

// NewDispatcher builds the registry and starts the worker pool.
// Call Close to drain and stop it.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	d := &Dispatcher{
		listeners: map[string][]registration{},
		queue:     make(chan Event, cfg.QueueSize),
		reporter:  cfg.Reporter,
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.dispatch(ev)
			}
		}()
	}
	return d
}

// Subscribe registers a named handler for an event name. Listener names show up
// in logs and metrics when a handler fails.
func (d *Dispatcher) Subscribe(eventName, listener string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventName] = append(d.listeners[eventName], registration{listener: listener, handler: h})
}

// Publish enqueues the event for the worker pool. It blocks only while the
// bounded queue is full and never surfaces listener outcomes to the caller.
// Publish must not be called after Close.
func (d *Dispatcher) Publish(ev Event) {
	d.queue <- ev
}

// Close drains the queue, waits for in-flight handlers and stops the workers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

// dispatch fans one event out to every registered handler. One handler's
// failure does not prevent the others from running.
func (d *Dispatcher) dispatch(ev Event) {
	d.mu.RLock()
	regs := make([]registration, len(d.listeners[ev.Name]))
	copy(regs, d.listeners[ev.Name])
	d.mu.RUnlock()

	ctx := context.Background()
	for _, reg := range regs {
		if err := d.invoke(ctx, reg, ev); err != nil {
			slog.Error("event listener failed",
				"event", ev.Name, "listener", reg.listener, "err", err)
			if d.reporter != nil {
				d.reporter.ReportListenerFailure(ctx, ev.Name, reg.listener, err)
			}
		}
	}
}

func (d *Dispatcher) invoke(ctx context.Context, reg registration, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return reg.handler(ctx, ev)
}
