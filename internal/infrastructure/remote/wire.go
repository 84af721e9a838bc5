// Package remote provides the sources federated master data is read from:
// an HTTP JSON client for a remote query endpoint and a second database.
package remote

import (
	"fmt"

	"github.com/xtravels/backend/internal/infrastructure/store"
)

// QueryRequest is the JSON form of a structured read. Only plain columns
// travel over the wire; the locale is carried in Accept-Language.
type QueryRequest struct {
	Entity   string          `json:"entity" binding:"required"`
	Columns  []string        `json:"columns,omitempty"`
	Where    map[string]any  `json:"where,omitempty"`
	In       *InRequest      `json:"in,omitempty"`
	Distinct bool            `json:"distinct,omitempty"`
	Expand   []ExpandRequest `json:"expand,omitempty"`
	OrderBy  []string        `json:"order_by,omitempty"`
	Limit    int             `json:"limit,omitempty" binding:"min=0"`
}

// InRequest is the JSON form of a tuple IN filter
type InRequest struct {
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

// ExpandRequest is the JSON form of a composition expansion
type ExpandRequest struct {
	Composition string          `json:"composition"`
	Columns     []string        `json:"columns,omitempty"`
	Expand      []ExpandRequest `json:"expand,omitempty"`
}

// QueryResponse carries the rows of a remote read
type QueryResponse struct {
	Rows []store.Row `json:"rows"`
}

// EncodeQuery converts q to its wire form. Computed columns cannot be sent.
func EncodeQuery(q store.Query) (QueryRequest, error) {
	cols, err := plainColumns(q.Entity, q.Columns)
	if err != nil {
		return QueryRequest{}, err
	}
	expand, err := encodeExpand(q.Entity, q.Expand)
	if err != nil {
		return QueryRequest{}, err
	}

	req := QueryRequest{
		Entity:   q.Entity,
		Columns:  cols,
		Distinct: q.Distinct,
		Expand:   expand,
		OrderBy:  q.OrderBy,
		Limit:    q.Limit,
	}
	if len(q.Where) > 0 {
		req.Where = map[string]any(q.Where)
	}
	if q.In != nil {
		req.In = &InRequest{Columns: q.In.Columns, Values: q.In.Values}
	}
	return req, nil
}

func encodeExpand(entity string, expands []store.Expand) ([]ExpandRequest, error) {
	if len(expands) == 0 {
		return nil, nil
	}
	out := make([]ExpandRequest, len(expands))
	for i, e := range expands {
		cols, err := plainColumns(entity+"."+e.Composition, e.Columns)
		if err != nil {
			return nil, err
		}
		nested, err := encodeExpand(entity+"."+e.Composition, e.Expand)
		if err != nil {
			return nil, err
		}
		out[i] = ExpandRequest{Composition: e.Composition, Columns: cols, Expand: nested}
	}
	return out, nil
}

func plainColumns(entity string, columns []store.Column) ([]string, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		name, ok := c.Plain()
		if !ok || (c.As != "" && c.As != name) {
			return nil, fmt.Errorf("remote query on %s: only plain columns are supported", entity)
		}
		names[i] = name
	}
	return names, nil
}

// Query converts the request back into a structured read with locale
func (r QueryRequest) Query(locale string) store.Query {
	q := store.Query{
		Entity:   r.Entity,
		Columns:  store.Cols(r.Columns...),
		Distinct: r.Distinct,
		Expand:   decodeExpand(r.Expand),
		Locale:   locale,
		OrderBy:  r.OrderBy,
		Limit:    r.Limit,
	}
	if len(r.Columns) == 0 {
		q.Columns = nil
	}
	if len(r.Where) > 0 {
		q.Where = store.Row(r.Where)
	}
	if r.In != nil {
		q.In = &store.In{Columns: r.In.Columns, Values: r.In.Values}
	}
	return q
}

func decodeExpand(expands []ExpandRequest) []store.Expand {
	if len(expands) == 0 {
		return nil
	}
	out := make([]store.Expand, len(expands))
	for i, e := range expands {
		out[i] = store.Expand{Composition: e.Composition, Expand: decodeExpand(e.Expand)}
		if len(e.Columns) > 0 {
			out[i].Columns = store.Cols(e.Columns...)
		}
	}
	return out
}
