// Package lock provides per-key mutual exclusion for balance mutations.
//
// Two backends exist: KeyedMutex for a single process and RedisLocker for
// several instances sharing one store. Both scope a lock to a single key so
// unrelated identities never contend.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the context ends before the lock is held.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. It is safe to call once.
type Unlock func()

// Locker acquires a lock for key, blocking until it is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}
