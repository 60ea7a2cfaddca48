package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish once the bus has been stopped
var ErrBusStopped = errors.New("event bus is stopped")

// InMemoryEventBus delivers ledger events synchronously to in-process
// handlers. A failing or panicking handler does not stop delivery to the
// others; their errors are joined and returned.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	metrics  *telemetry.LedgerMetrics
	stopped  atomic.Bool
	inflight sync.WaitGroup
}

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithBusMetrics counts delivered events
func WithBusMetrics(m *telemetry.LedgerMetrics) BusOption {
	return func(b *InMemoryEventBus) {
		b.metrics = m
	}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	b := &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger.Named("event_bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish hands each event to its handlers in registration order
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}
	b.inflight.Add(1)
	defer b.inflight.Done()

	ctx, span := telemetry.StartServiceSpan(ctx, "event_bus", "publish")
	defer span.End()
	telemetry.SetAttributes(span, "event.count", len(events))

	var errs []error
	for _, event := range events {
		for _, handler := range b.registry.Handlers(event.EventType()) {
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.logger.Error("Event handler failed",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("aggregate_id", event.AggregateID().String()),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
		b.metrics.RecordEvent(ctx, event.EventType())
	}

	err := errors.Join(errs...)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetOK(span)
	}
	return err
}

// Subscribe registers a handler. Without explicit types the handler's own
// EventTypes are used; an empty list subscribes to everything.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("Handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start opens the bus for publishing
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.stopped.Store(false)
	b.logger.Info("Event bus started", zap.Int("handlers", b.registry.Len()))
	return nil
}

// Stop rejects new events and waits for in-flight deliveries or ctx
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.stopped.Store(true)
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("Event bus stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus stop: %w", ctx.Err())
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked on %s: %v", event.EventType(), r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
