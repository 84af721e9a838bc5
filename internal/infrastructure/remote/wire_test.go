package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtravels/backend/internal/infrastructure/store"
)

func TestEncodeQuery(t *testing.T) {
	q := store.Query{
		Entity:  "Supplements",
		Columns: store.Cols("id", "descr"),
		Where:   store.Row{"type": "BV"},
		In:      &store.In{Columns: []string{"id"}, Values: [][]any{{"bv-0001"}}},
		Expand:  []store.Expand{{Composition: "texts", Expand: nil}},
		Locale:  "de",
		OrderBy: []string{"id"},
		Limit:   5,
	}

	req, err := EncodeQuery(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "descr"}, req.Columns)
	assert.Equal(t, "BV", req.Where["type"])
	assert.Equal(t, "texts", req.Expand[0].Composition)
	assert.Nil(t, req.Expand[0].Columns)

	back := req.Query("de")
	assert.Equal(t, q, back)
}

func TestEncodeQuery_SelectAll(t *testing.T) {
	req, err := EncodeQuery(store.Query{Entity: "Flights"})
	require.NoError(t, err)
	assert.Nil(t, req.Columns)
	assert.Nil(t, req.Where)

	q := req.Query("")
	assert.Nil(t, q.Columns)
	assert.Nil(t, q.Where)
	assert.True(t, q.IsSingleLevel())
}

func TestEncodeQuery_RejectsComputedColumns(t *testing.T) {
	_, err := EncodeQuery(store.Query{
		Entity:  "Bookings",
		Columns: []store.Column{store.MaxCol("pos", "max_pos")},
	})
	assert.Error(t, err)

	_, err = EncodeQuery(store.Query{
		Entity: "Supplements",
		Expand: []store.Expand{{Composition: "texts", Columns: []store.Column{{Expr: store.Ref("descr"), As: "label"}}}},
	})
	assert.Error(t, err)
}
