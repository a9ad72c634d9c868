// Package locking provides named, expiring locks used to keep batch jobs and
// BOM allocations from running concurrently on the same key.
package locking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotObtained is returned when the key is already held
var ErrNotObtained = errors.New("lock not obtained")

// Lock is a held lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtains named locks
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// WithLock runs fn while holding key
func WithLock(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := locker.Obtain(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// LocalLocker is an in-process Locker used when no redis is configured
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	clock func() time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// Obtain takes key unless it is held and not yet expired
func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrNotObtained
	}
	expires := now.Add(ttl)
	l.held[key] = expires

	return &localLock{owner: l, key: key, expires: expires}, nil
}

type localLock struct {
	owner   *LocalLocker
	key     string
	expires time.Time
}

func (lk *localLock) Release(ctx context.Context) error {
	lk.owner.mu.Lock()
	defer lk.owner.mu.Unlock()

	// A lock that expired and was taken again belongs to someone else
	if current, ok := lk.owner.held[lk.key]; ok && current.Equal(lk.expires) {
		delete(lk.owner.held, lk.key)
	}
	return nil
}
