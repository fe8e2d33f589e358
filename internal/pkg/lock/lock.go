// Package lock provides keyed locking for read-modify-write sequences
// against the state store.
package lock

import "sync"

// entry is a per-key mutex. refs counts the holder plus every waiter and
// is only touched under KeyedLock.mu.
type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedLock hands out one mutex per key. Callers use it to serialize
// read-modify-persist cycles on the same scope while different scopes
// proceed independently. A key's entry is dropped once nobody holds or
// waits for it, so the table only grows with concurrent keys.
type KeyedLock[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

// New creates a new KeyedLock instance.
func New[K comparable]() *KeyedLock[K] {
	return &KeyedLock[K]{locks: make(map[K]*entry)}
}

// Lock acquires the lock for a key.
func (kl *KeyedLock[K]) Lock(key K) {
	kl.mu.Lock()
	e, ok := kl.locks[key]
	if !ok {
		e = &entry{}
		kl.locks[key] = e
	}
	e.refs++
	kl.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the lock for a key. Unlocking a key that is not locked
// is a programming error and panics, like sync.Mutex.
func (kl *KeyedLock[K]) Unlock(key K) {
	kl.mu.Lock()
	e, ok := kl.locks[key]
	if !ok {
		kl.mu.Unlock()
		panic("lock: unlock of unlocked key")
	}
	e.refs--
	if e.refs == 0 {
		delete(kl.locks, key)
	}
	kl.mu.Unlock()

	e.mu.Unlock()
}

// size reports how many keys currently have an entry.
func (kl *KeyedLock[K]) size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
