// Package locks provides a keyed mutex shared by every service that
// mutates identity state, so delete, update and reconciliation never
// interleave on the same remote identity.
package locks

import "sync"

type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock blocks until the key is available and returns its unlock func.
// Entries are reference counted and removed once the last holder leaves,
// so the map does not grow with the identity space.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
