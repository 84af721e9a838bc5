package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"go.uber.org/zap"
)

// recorder records the handler names in call order
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string, err error) Handler {
	return HandlerFunc(func(ctx context.Context, m *Mutation) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		return err
	})
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDispatcher_RoutesByPhaseEventAndEntity(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	rec := &recorder{}

	d.On(Before, "numbering", rec.handler("numbering", nil), []Event{Create}, "Travels")
	d.On(After, "pricing", rec.handler("pricing", nil), []Event{Create, Update}, "Travels", "Bookings")
	d.On(After, "replication", rec.handler("replication", nil), []Event{Create, Upsert})

	ctx := context.Background()
	require.NoError(t, d.Before(ctx, NewMutation(Create, "Travels", nil, nil)))
	assert.Equal(t, []string{"numbering"}, rec.get())

	require.NoError(t, d.After(ctx, NewMutation(Create, "Travels", nil, nil)))
	assert.Equal(t, []string{"numbering", "pricing", "replication"}, rec.get())

	require.NoError(t, d.After(ctx, NewMutation(Upsert, "Flights", nil, nil)))
	assert.Equal(t, []string{"numbering", "pricing", "replication", "replication"}, rec.get())

	require.NoError(t, d.Before(ctx, NewMutation(Delete, "Travels", nil, nil)))
	assert.Len(t, rec.get(), 4)
}

func TestDispatcher_WildcardKeepsRegistrationOrder(t *testing.T) {
	d := NewDispatcher(nil)
	rec := &recorder{}

	d.On(After, "first", rec.handler("first", nil), []Event{Create})
	d.On(After, "second", rec.handler("second", nil), []Event{Create}, "Travels")
	d.On(After, "third", rec.handler("third", nil), []Event{Create})

	require.NoError(t, d.After(context.Background(), NewMutation(Create, "Travels", nil, nil)))
	assert.Equal(t, []string{"first", "second", "third"}, rec.get())
}

func TestDispatcher_StopsAtFirstError(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	rec := &recorder{}
	boom := errors.New("boom")

	d.On(After, "failing", rec.handler("failing", boom), []Event{Update}, "Bookings")
	d.On(After, "skipped", rec.handler("skipped", nil), []Event{Update}, "Bookings")

	err := d.After(context.Background(), NewMutation(Update, "Bookings", nil, nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"failing"}, rec.get())
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.On(Before, "panicky", HandlerFunc(func(ctx context.Context, m *Mutation) error {
		panic("unexpected")
	}), []Event{Create})

	err := d.Before(context.Background(), NewMutation(Create, "Travels", nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicky")
}

func TestDispatcher_Off(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	rec := &recorder{}
	d.On(After, "pricing", rec.handler("pricing", nil), []Event{Delete}, "Bookings")
	d.Off("pricing")

	require.NoError(t, d.After(context.Background(), NewMutation(Delete, "Bookings", nil, nil)))
	assert.Empty(t, rec.get())
}

func TestMutation(t *testing.T) {
	t.Run("changed columns across data rows", func(t *testing.T) {
		m := NewMutation(Update, "Bookings", nil, nil).
			WithKeys(store.Row{"id": "b-1"}).
			WithData(store.Row{"flight_id": "LH0400"}, store.Row{"flight_price": 10})
		assert.True(t, m.Changed("flight_price"))
		assert.True(t, m.Changed("booking_fee", "flight_id"))
		assert.False(t, m.Changed("price"))
		assert.Equal(t, "b-1", m.Keys["id"])
	})

	t.Run("values carry between phases", func(t *testing.T) {
		m := NewMutation(Delete, "Bookings", nil, nil)
		_, ok := m.Get("root")
		assert.False(t, ok)
		m.Set("root", "t-1")
		v, ok := m.Get("root")
		assert.True(t, ok)
		assert.Equal(t, "t-1", v)
	})

	t.Run("deferred functions run in reverse order", func(t *testing.T) {
		var order []int
		deferred := &Deferred{}
		m := NewMutation(Create, "Travels", nil, deferred)
		m.Defer(func() { order = append(order, 1) })
		m.Defer(func() { order = append(order, 2) })

		deferred.Run()
		assert.Equal(t, []int{2, 1}, order)

		deferred.Run()
		assert.Equal(t, []int{2, 1}, order, "functions run once")
	})

	t.Run("defer without collector is dropped", func(t *testing.T) {
		m := NewMutation(Create, "Travels", nil, nil)
		assert.NotPanics(t, func() { m.Defer(func() {}) })
	})

	t.Run("draft events", func(t *testing.T) {
		assert.True(t, DraftNew.IsDraft())
		assert.True(t, DraftCancel.IsDraft())
		assert.False(t, Create.IsDraft())
	})
}
