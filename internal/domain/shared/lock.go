package shared

import "context"

// ScopeLocker serializes key allocation for a numbering scope.
// Lock blocks until the scope is free or ctx is done. The returned release
// function must be called exactly once, after the allocating transaction ends.
type ScopeLocker interface {
	Lock(ctx context.Context, scope string) (release func(), err error)
}
