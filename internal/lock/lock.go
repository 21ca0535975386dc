// Package lock provides per-key advisory locks with expiry.
package lock

import (
	"context"
	"time"
)

const keyPrefix = "insight:lock:"

// Locker hands out short-lived exclusive leases on string keys. A lease expires on its own after
// its TTL, so a crashed holder cannot block the key forever.
type Locker interface {
	// TryAcquire takes the lease if it is free. ok is false when another holder has it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release drops the lease only if token still owns it.
	Release(ctx context.Context, key, token string) error
	Close() error
}
