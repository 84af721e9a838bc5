package store

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_Accessors(t *testing.T) {
	id := uuid.New()
	r := Row{
		"id":       id.String(),
		"pos":      int64(3),
		"fee":      json.Number("12.50"),
		"price":    nil,
		"active":   int64(1),
		"name":     []byte("LH0400"),
		"children": []any{map[string]any{"a": 1}, Row{"b": 2}},
	}

	got, err := r.UUID("id")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	_, err = r.UUID("price")
	assert.Error(t, err)

	assert.Equal(t, 3, r.Int("pos"))
	assert.Equal(t, 0, r.Int("missing"))
	assert.True(t, r.Decimal("fee").Equal(decimal.RequireFromString("12.5")))

	_, ok := r.NullDecimal("price")
	assert.False(t, ok)
	assert.True(t, r.Has("price"))
	assert.True(t, r.IsNull("price"))
	assert.True(t, r.IsNull("missing"))

	assert.True(t, r.Bool("active"))
	assert.Equal(t, "LH0400", r.String("name"))
	assert.Len(t, r.Rows("children"), 2)
	assert.True(t, r.HasAny("missing", "pos"))
}

func TestRow_PickCloneKey(t *testing.T) {
	r := Row{"id": "LH0400", "flight_date": "2024-06-01", "price": 10, "texts": []Row{{"locale": "de"}}}

	assert.Equal(t, Row{"id": "LH0400", "price": 10}, r.Pick("id", "price", "absent"))
	assert.Equal(t, "LH0400|2024-06-01", r.KeyString([]string{"id", "flight_date"}))

	c := r.Clone()
	c.Rows("texts")[0]["locale"] = "fr"
	assert.Equal(t, "de", r.Rows("texts")[0]["locale"])
}

func TestResult(t *testing.T) {
	var empty *Result
	assert.Equal(t, 0, empty.RowCount())
	_, err := empty.Single()
	assert.ErrorIs(t, err, ErrNotSingle)

	res := &Result{Rows: []Row{{"a": 1}, {"a": 2}}}
	_, err = res.Single()
	assert.ErrorIs(t, err, ErrNotSingle)
	first, ok := res.First()
	assert.True(t, ok)
	assert.Equal(t, 1, first["a"])
}

func TestQuery_IsSingleLevel(t *testing.T) {
	assert.True(t, Query{Entity: "Flights"}.IsSingleLevel())
	assert.False(t, Query{Entity: "Supplements", Expand: []Expand{{Composition: "texts"}}}.IsSingleLevel())
}
