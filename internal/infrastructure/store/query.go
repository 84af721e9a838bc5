package store

import (
	"errors"
	"fmt"
)

// ErrNotSingle is returned by Result.Single when the result does not hold exactly one row
var ErrNotSingle = errors.New("store: expected exactly one row")

// Column is one item of a projection: a plain column or a computed expression
type Column struct {
	Expr Expr
	As   string
}

// Col projects a plain column
func Col(name string) Column {
	return Column{Expr: Ref(name)}
}

// Cols projects several plain columns
func Cols(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Col(n)
	}
	return cols
}

// MaxCol projects MAX(name) aliased as alias
func MaxCol(name, alias string) Column {
	return Column{Expr: MaxOf(Ref(name)), As: alias}
}

// Alias returns the result column name of the projection
func (c Column) Alias() string {
	if c.As != "" {
		return c.As
	}
	if name, ok := c.Plain(); ok {
		return name
	}
	return ""
}

// Plain returns the column name when the projection is a plain column
func (c Column) Plain() (string, bool) {
	if r, ok := c.Expr.(ref); ok {
		return r.column, true
	}
	return "", false
}

// In filters rows whose column tuple is one of Values
type In struct {
	Columns []string
	Values  [][]any
}

// Expand nests the rows of a composition under each result row
type Expand struct {
	Composition string
	Columns     []Column
	Expand      []Expand
}

// Query is a structured read against one entity
type Query struct {
	Entity   string
	Columns  []Column // empty selects all columns
	Where    Row      // equality predicates, nil values match NULL
	In       *In
	Distinct bool
	Expand   []Expand
	Locale   string
	OrderBy  []string
	Limit    int
}

// IsSingleLevel reports whether the query reads one entity without expanding compositions
func (q Query) IsSingleLevel() bool {
	return len(q.Expand) == 0
}

// String renders a short description for logs
func (q Query) String() string {
	return fmt.Sprintf("%s where=%v expand=%d locale=%q", q.Entity, map[string]any(q.Where), len(q.Expand), q.Locale)
}

// Result holds the rows of a query
type Result struct {
	Rows []Row
}

// RowCount returns the number of rows
func (r *Result) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Single returns the only row or ErrNotSingle
func (r *Result) Single() (Row, error) {
	if r.RowCount() != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNotSingle, r.RowCount())
	}
	return r.Rows[0], nil
}

// First returns the first row and whether there was one
func (r *Result) First() (Row, bool) {
	if r.RowCount() == 0 {
		return nil, false
	}
	return r.Rows[0], true
}
