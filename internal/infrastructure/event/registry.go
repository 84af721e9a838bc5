package event

import (
	"context"
	"sync"
)

// Handler reacts to a mutation
type Handler interface {
	Handle(ctx context.Context, m *Mutation) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, m *Mutation) error

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, m *Mutation) error {
	return f(ctx, m)
}

// AnyEntity registers a handler for every entity
const AnyEntity = "*"

// Registration is a named handler
type Registration struct {
	Name    string
	Handler Handler
}

// HandlerRegistry manages handler registrations per phase, event and entity.
// Handlers run in registration order.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]Registration // phase/event/entity -> handlers
	order    map[string]int            // handler name -> registration sequence
	seq      int
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string][]Registration),
		order:    make(map[string]int),
	}
}

// Register adds a named handler for the events of the given entities.
// No entities means every entity.
func (r *HandlerRegistry) Register(phase Phase, name string, handler Handler, events []Event, entities ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(entities) == 0 {
		entities = []string{AnyEntity}
	}
	if _, ok := r.order[name]; !ok {
		r.seq++
		r.order[name] = r.seq
	}
	for _, ev := range events {
		for _, entity := range entities {
			k := key(phase, ev, entity)
			r.handlers[k] = append(r.handlers[k], Registration{Name: name, Handler: handler})
		}
	}
}

// Unregister removes a handler by name
func (r *HandlerRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, regs := range r.handlers {
		kept := regs[:0]
		for _, reg := range regs {
			if reg.Name != name {
				kept = append(kept, reg)
			}
		}
		if len(kept) == 0 {
			delete(r.handlers, k)
		} else {
			r.handlers[k] = kept
		}
	}
	delete(r.order, name)
}

// GetHandlers returns the entity-specific and wildcard handlers for a phase
// and event, ordered by registration
func (r *HandlerRegistry) GetHandlers(phase Phase, ev Event, entity string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specific := r.handlers[key(phase, ev, entity)]
	wildcard := r.handlers[key(phase, ev, AnyEntity)]
	result := make([]Registration, 0, len(specific)+len(wildcard))

	// merge the two lists, both already in registration order
	i, j := 0, 0
	for i < len(specific) || j < len(wildcard) {
		switch {
		case j >= len(wildcard):
			result = append(result, specific[i])
			i++
		case i >= len(specific):
			result = append(result, wildcard[j])
			j++
		case r.order[specific[i].Name] <= r.order[wildcard[j].Name]:
			result = append(result, specific[i])
			i++
		default:
			result = append(result, wildcard[j])
			j++
		}
	}
	return result
}

func key(phase Phase, ev Event, entity string) string {
	return string(phase) + "/" + string(ev) + "/" + entity
}
