// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package sync2

import "sync"

// KeyMutex serializes callers that use the same key while letting callers
// with different keys proceed concurrently.
//
// The zero value is ready for use.
type KeyMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Lock locks key and returns the function that unlocks it.
func (km *KeyMutex[K]) Lock(key K) (unlock func()) {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[K]*keyLock)
	}
	lock, ok := km.locks[key]
	if !ok {
		lock = &keyLock{}
		km.locks[key] = lock
	}
	lock.refs++
	km.mu.Unlock()

	lock.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.mu.Unlock()

			km.mu.Lock()
			lock.refs--
			if lock.refs == 0 {
				delete(km.locks, key)
			}
			km.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (km *KeyMutex[K]) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}
