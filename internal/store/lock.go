package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrLockTimeout = errors.New("lock not acquired before deadline")

const lockPollInterval = 25 * time.Millisecond

// LocationLock is a best-effort mutual exclusion over a KV, keyed by an
// arbitrary string (a normalized crosswalk location). The TTL bounds how long
// a crashed holder can block others.
type LocationLock struct {
	kv     KV
	ttl    time.Duration
	prefix string
}

func NewLocationLock(kv KV, ttl time.Duration) *LocationLock {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &LocationLock{kv: kv, ttl: ttl, prefix: "crosswalk:lock:location:"}
}

// Acquire blocks until the lock is held, ctx is done, or one TTL elapses.
// The returned release func is safe to call once the lock has expired.
func (l *LocationLock) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.kv.SetNX(ctx, fullKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
		}
		if ok {
			return func() {
				// Detached from ctx so a cancelled request still releases.
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_, _ = l.kv.DeleteIfEqual(rctx, fullKey, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, fullKey)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
