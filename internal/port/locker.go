package port

import (
	"context"
	"time"
)

// Locker is a cross-process mutual exclusion primitive. Acquisition is a
// single non-blocking attempt; retry and backoff belong to the caller.
type Locker interface {
	// TryLock returns a nil Mutex when the lock is held elsewhere.
	// Contention is a normal outcome, not an error.
	TryLock(ctx context.Context, name string, ttl time.Duration) (Mutex, error)
}

// Mutex is one successful acquisition. Unlock releases the lock only if
// this holder still owns it; releasing a lock taken over by another holder
// after TTL expiry is a no-op.
type Mutex interface {
	Unlock(ctx context.Context) error
}

// Principal resolves the acting user. The core never reads ambient state
// for this; the resolved id is passed explicitly across every scheduling
// boundary.
type Principal interface {
	CurrentUser(ctx context.Context) (int64, error)
}
