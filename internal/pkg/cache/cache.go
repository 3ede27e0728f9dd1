// Package cache provides short-lived exclusive locks, backed by redis when
// several instances share the work and by process memory otherwise.
package cache

import (
	"context"
	"fmt"
	"time"
)

// UnlockFunc releases a lock taken by TryLock.
type UnlockFunc func(ctx context.Context) error

// Locker hands out exclusive locks by key. A lock expires after its ttl
// even if it is never released.
type Locker interface {
	// TryLock takes key for ttl without waiting. ok is false when the key is
	// already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock UnlockFunc, ok bool, err error)
}

// Key namespaces a lock key by service and operation.
func Key(serviceName, operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", serviceName, operation, key)
}
