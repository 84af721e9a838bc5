// Package event dispatches mutation events to the handlers registered for an
// entity. Handlers run synchronously inside the unit of work of the write
// that raised the event: a Before handler can still change the data about to
// be written, an After handler sees the written rows through the same
// transaction.
package event

import (
	"sync"

	"github.com/xtravels/backend/internal/infrastructure/store"
)

// Event is the kind of write a mutation performs
type Event string

const (
	Create      Event = "CREATE"
	Update      Event = "UPDATE"
	Upsert      Event = "UPSERT"
	Delete      Event = "DELETE"
	DraftNew    Event = "DRAFT_NEW"
	DraftPatch  Event = "DRAFT_PATCH"
	DraftCancel Event = "DRAFT_CANCEL"
)

// IsDraft reports whether the event works on a draft
func (e Event) IsDraft() bool {
	return e == DraftNew || e == DraftPatch || e == DraftCancel
}

// Phase is the point of a write a handler runs at
type Phase string

const (
	Before Phase = "before"
	After  Phase = "after"
)

// Mutation is one write flowing through the dispatcher.
//
// Keys identifies the target row of UPDATE, DELETE and the draft events.
// Data holds the rows written by CREATE, UPSERT and DRAFT_NEW (nested
// compositions included), or the single changed row of UPDATE and
// DRAFT_PATCH. Tx is the store of the unit of work.
type Mutation struct {
	Event  Event
	Entity string
	Keys   store.Row
	Data   []store.Row
	Tx     store.Store

	mu       sync.Mutex
	values   map[string]any
	deferred *Deferred
}

// NewMutation creates a mutation bound to the unit of work tx.
// Functions passed to Defer are collected in deferred.
func NewMutation(ev Event, entity string, tx store.Store, deferred *Deferred) *Mutation {
	return &Mutation{Event: ev, Entity: entity, Tx: tx, deferred: deferred}
}

// WithKeys sets the target keys and returns the mutation
func (m *Mutation) WithKeys(keys store.Row) *Mutation {
	m.Keys = keys
	return m
}

// WithData sets the written rows and returns the mutation
func (m *Mutation) WithData(rows ...store.Row) *Mutation {
	m.Data = rows
	return m
}

// Changed reports whether any written row carries one of the columns
func (m *Mutation) Changed(columns ...string) bool {
	for _, row := range m.Data {
		if row.HasAny(columns...) {
			return true
		}
	}
	return false
}

// Set stores a value for a later phase of the same mutation
func (m *Mutation) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]any)
	}
	m.values[key] = value
}

// Get returns a value stored by Set
func (m *Mutation) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Defer registers fn to run once the unit of work has ended, whether it
// committed or rolled back. Without a Deferred collector fn is dropped.
func (m *Mutation) Defer(fn func()) {
	if m.deferred != nil {
		m.deferred.Add(fn)
	}
}

// Deferred collects functions to run after a unit of work
type Deferred struct {
	mu  sync.Mutex
	fns []func()
}

// Add appends fn
func (d *Deferred) Add(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, fn)
}

// Run runs the collected functions in reverse order and clears them
func (d *Deferred) Run() {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
