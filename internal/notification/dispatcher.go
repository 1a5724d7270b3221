// internal/notification/dispatcher.go
package notification

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"lendhub/pkg/logger"
)

// HandlerFunc turns one event payload into stored notifications.
type HandlerFunc func(ctx context.Context, payload any) error

// HandlerID identifies an attached handler so it can be detached.
type HandlerID uint64

// Emitter is the producer side of the Dispatcher.
type Emitter interface {
	Notify(ctx context.Context, t Type, payload any)
}

// Dispatcher fans events out to the handlers attached for their type.
// Attach and Detach are expected at startup and in tests; Notify may be
// called from any number of goroutines.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Type]map[HandlerID]HandlerFunc
	nextID   HandlerID

	log      *logger.Logger
	tracer   trace.Tracer
	runs     metric.Int64Counter
	failures metric.Int64Counter
}

var _ Emitter = (*Dispatcher)(nil)

// NewDispatcher returns a dispatcher with no handlers.
func NewDispatcher(log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("notification")
	}
	meter := otel.Meter("lendhub/notification")

	runs, err := meter.Int64Counter("lendhub.notification.handler.runs",
		metric.WithDescription("Notification handler invocations"))
	if err != nil {
		log.WithError(err).Warn("handler run counter unavailable")
		runs = noop.Int64Counter{}
	}
	failures, err := meter.Int64Counter("lendhub.notification.handler.failures",
		metric.WithDescription("Notification handler invocations that returned an error or panicked"))
	if err != nil {
		log.WithError(err).Warn("handler failure counter unavailable")
		failures = noop.Int64Counter{}
	}

	return &Dispatcher{
		handlers: make(map[Type]map[HandlerID]HandlerFunc),
		log:      log,
		tracer:   otel.Tracer("lendhub/notification"),
		runs:     runs,
		failures: failures,
	}
}

// Attach registers h for t.
func (d *Dispatcher) Attach(t Type, h HandlerFunc) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	set, ok := d.handlers[t]
	if !ok {
		set = make(map[HandlerID]HandlerFunc)
		d.handlers[t] = set
	}
	set[d.nextID] = h
	return d.nextID
}

// Detach removes a handler. It reports whether the handler was attached.
func (d *Dispatcher) Detach(t Type, id HandlerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.handlers[t]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(d.handlers, t)
	}
	return true
}

// Handlers reports how many handlers are attached for t.
func (d *Dispatcher) Handlers(t Type) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[t])
}

// Notify runs every handler attached for t concurrently and waits for all of
// them. Handler errors and panics are logged and counted, never returned.
func (d *Dispatcher) Notify(ctx context.Context, t Type, payload any) {
	d.mu.RLock()
	handlers := make([]HandlerFunc, 0, len(d.handlers[t]))
	for _, h := range d.handlers[t] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	ctx, span := d.tracer.Start(ctx, "notification.notify", trace.WithAttributes(
		attribute.String("notification.type", string(t)),
		attribute.Int("notification.handlers", len(handlers)),
	))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("type", string(t)))
	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h HandlerFunc) {
			defer wg.Done()
			d.runs.Add(ctx, 1, attrs)
			if err := d.invoke(ctx, h, payload); err != nil {
				d.failures.Add(ctx, 1, attrs)
				span.RecordError(err)
				d.log.WithError(err).WithField("type", t).Warn("notification handler failed")
			}
		}(h)
	}
	wg.Wait()
}

func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}
