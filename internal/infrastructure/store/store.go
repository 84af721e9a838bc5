// Package store is the structured query and write collaborator used by the
// allocation, pricing and federation components. Reads and writes are
// expressed as entity + column maps resolved against the schema registry.
package store

import "context"

// Querier executes structured reads
type Querier interface {
	Select(ctx context.Context, q Query) (*Result, error)
}

// WriteOptions tune a single write
type WriteOptions struct {
	// BypassReadOnly allows writing columns the registry marks read-only
	BypassReadOnly bool
}

// Writer executes writes. Rows may carry nested composition rows which are
// written together with their parent.
type Writer interface {
	Insert(ctx context.Context, entity string, rows []Row, opts WriteOptions) (int64, error)
	Upsert(ctx context.Context, entity string, rows []Row, opts WriteOptions) (int64, error)
	Update(ctx context.Context, entity string, keys Row, data Row, opts WriteOptions) (int64, error)
	Delete(ctx context.Context, entity string, keys Row) (int64, error)
}

// Store is a querier and writer that can open a unit of work.
// Transaction called on a store that is already inside a transaction opens a savepoint.
type Store interface {
	Querier
	Writer
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
