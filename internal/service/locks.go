package service

import "sync"

// keyedMutex hands out one mutex per key. Entries are dropped once no
// goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.RWMutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) acquire(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++

	return e
}

func (k *keyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock takes the exclusive lock for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	e := k.acquire(key)
	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.release(key)
	}
}

// RLock takes the shared lock for key and returns its unlock function.
func (k *keyedMutex) RLock(key string) func() {
	e := k.acquire(key)
	e.mu.RLock()

	return func() {
		e.mu.RUnlock()
		k.release(key)
	}
}

// TryLock takes the exclusive lock for key only if it is free.
func (k *keyedMutex) TryLock(key string) (func(), bool) {
	e := k.acquire(key)
	if !e.mu.TryLock() {
		k.release(key)
		return nil, false
	}

	return func() {
		e.mu.Unlock()
		k.release(key)
	}, true
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.locks)
}
