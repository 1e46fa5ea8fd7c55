// Package lock serializes fetch transactions per task id. The snapshot store
// does no locking of its own, so two concurrent refreshes touching the same
// task would otherwise interleave partial writes or race a cleanup against an
// in-flight commit.
package lock

import "context"

// Locker grants exclusive ownership of a key for the duration of one fetch
// transaction. Acquire blocks until the key is free or ctx is done; the
// returned release func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
