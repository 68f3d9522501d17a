package session

import (
	"context"
	"sync"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// lockRegistry hands out one mutex per key. Entries are created on first use
// and removed once nobody holds or waits on them.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[Key]*keyLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[Key]*keyLock)}
}

// acquire blocks until the key's lock is held or ctx is done. The returned
// func releases the lock and must be called exactly once.
func (r *lockRegistry) acquire(ctx context.Context, key Key) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		r.unref(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			r.unref(key, l)
		})
	}, nil
}

func (r *lockRegistry) unref(key Key, l *keyLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
