package event

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Dispatcher runs the handlers registered for a mutation synchronously.
// The first failing handler aborts the dispatch and its error is returned,
// so the caller rolls the unit of work back.
type Dispatcher struct {
	registry *HandlerRegistry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher with an empty registry
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
}

// On registers a named handler for the events of the given entities at a phase.
// No entities means every entity.
func (d *Dispatcher) On(phase Phase, name string, handler Handler, events []Event, entities ...string) {
	d.registry.Register(phase, name, handler, events, entities...)
	d.logger.Debug("mutation handler registered",
		zap.String("handler", name),
		zap.String("phase", string(phase)),
		zap.Any("events", events),
		zap.Strings("entities", entities),
	)
}

// Off removes a handler by name
func (d *Dispatcher) Off(name string) {
	d.registry.Unregister(name)
}

// Before runs the before handlers of m
func (d *Dispatcher) Before(ctx context.Context, m *Mutation) error {
	return d.dispatch(ctx, Before, m)
}

// After runs the after handlers of m
func (d *Dispatcher) After(ctx context.Context, m *Mutation) error {
	return d.dispatch(ctx, After, m)
}

func (d *Dispatcher) dispatch(ctx context.Context, phase Phase, m *Mutation) error {
	for _, reg := range d.registry.GetHandlers(phase, m.Event, m.Entity) {
		if err := d.dispatchToHandler(ctx, reg, m); err != nil {
			d.logger.Debug("mutation handler failed",
				zap.String("handler", reg.Name),
				zap.String("phase", string(phase)),
				zap.String("event", string(m.Event)),
				zap.String("entity", m.Entity),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

// dispatchToHandler turns a handler panic into an error
func (d *Dispatcher) dispatchToHandler(ctx context.Context, reg Registration, m *Mutation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("mutation handler panicked",
				zap.String("handler", reg.Name),
				zap.String("event", string(m.Event)),
				zap.String("entity", m.Entity),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler %s panicked: %v", reg.Name, r)
		}
	}()

	return reg.Handler.Handle(ctx, m)
}
