package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Row is one record as a column → value map. Compositions are nested under
// their composition name as []Row.
type Row map[string]any

// Has reports whether the column is present (a present column may hold nil)
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// HasAny reports whether any of the columns is present
func (r Row) HasAny(columns ...string) bool {
	for _, c := range columns {
		if r.Has(c) {
			return true
		}
	}
	return false
}

// IsNull reports whether the column is absent or nil
func (r Row) IsNull(column string) bool {
	v, ok := r[column]
	return !ok || v == nil
}

// String returns the column as a string; nil yields ""
func (r Row) String(column string) string {
	return toString(r[column])
}

// Int returns the column as an int; nil or unparsable values yield 0
func (r Row) Int(column string) int {
	switch v := r[column].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case decimal.Decimal:
		return int(v.IntPart())
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case []byte:
		n, _ := strconv.Atoi(string(v))
		return n
	}
	return 0
}

// Decimal returns the column as a decimal; nil yields zero
func (r Row) Decimal(column string) decimal.Decimal {
	d, _ := r.NullDecimal(column)
	return d
}

// NullDecimal returns the column as a decimal and whether it was non-null
func (r Row) NullDecimal(column string) (decimal.Decimal, bool) {
	d, err := toDecimal(r[column])
	if err != nil || r.IsNull(column) {
		return decimal.Zero, false
	}
	return d, true
}

// UUID returns the column parsed as a uuid
func (r Row) UUID(column string) (uuid.UUID, error) {
	switch v := r[column].(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case nil:
		return uuid.Nil, fmt.Errorf("column %s is null", column)
	}
	return uuid.Parse(toString(r[column]))
}

// Bool returns the column as a bool
func (r Row) Bool(column string) bool {
	switch v := r[column].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Rows returns the nested rows of a composition
func (r Row) Rows(composition string) []Row {
	switch v := r[composition].(type) {
	case []Row:
		return v
	case []map[string]any:
		rows := make([]Row, len(v))
		for i := range v {
			rows[i] = Row(v[i])
		}
		return rows
	case []any:
		rows := make([]Row, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case Row:
				rows = append(rows, m)
			case map[string]any:
				rows = append(rows, Row(m))
			}
		}
		return rows
	}
	return nil
}

// Pick returns a new row holding only the given columns that are present
func (r Row) Pick(columns ...string) Row {
	picked := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			picked[c] = v
		}
	}
	return picked
}

// Clone returns a shallow copy with nested composition rows copied as well
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		if nested, ok := v.([]Row); ok {
			rows := make([]Row, len(nested))
			for i := range nested {
				rows[i] = nested[i].Clone()
			}
			c[k] = rows
			continue
		}
		c[k] = v
	}
	return c
}

// KeyString renders the values of columns as a stable map key
func (r Row) KeyString(columns []string) string {
	s := ""
	for i, c := range columns {
		if i > 0 {
			s += "|"
		}
		s += toString(r[c])
	}
	return s
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case [16]byte:
		return uuid.UUID(t).String()
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return t, nil
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, nil
		}
		return *t, nil
	case decimal.NullDecimal:
		return t.Decimal, nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return decimal.NewFromString(t)
	case []byte:
		return decimal.NewFromString(string(t))
	}
	return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
}
