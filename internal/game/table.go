package game

import (
	"sync"

	"github.com/google/uuid"
)

// Sessioner is any game session embedding *Session.
type Sessioner interface {
	Base() *Session
}

// Key addresses a live session. UserID is zero for chat-wide games.
type Key struct {
	ChatID int64
	UserID int64
	Kind   Kind
}

// ChatKey returns the key of a chat-wide session.
func ChatKey(chatID int64, kind Kind) Key {
	return Key{ChatID: chatID, Kind: kind}
}

// UserKey returns the key of a per-user session.
func UserKey(chatID, userID int64, kind Kind) Key {
	return Key{ChatID: chatID, UserID: userID, Kind: kind}
}

// Table holds the live sessions of one game, at most one per key.
type Table[S Sessioner] struct {
	mu   sync.RWMutex
	live map[Key]S
}

// NewTable creates an empty session table.
func NewTable[S Sessioner]() *Table[S] {
	return &Table[S]{
		live: make(map[Key]S),
	}
}

// Start stores s under key unless an active session already holds it.
// A finished session left under the key is replaced.
func (t *Table[S]) Start(key Key, s S) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.live[key]; ok && existing.Base().Active() {
		return ErrGameAlreadyActive
	}
	t.live[key] = s
	return nil
}

// Get returns the session stored under key.
func (t *Table[S]) Get(key Key) (S, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.live[key]
	return s, ok
}

// Lookup returns the session under key only if it has the given id.
func (t *Table[S]) Lookup(key Key, id uuid.UUID) (S, bool) {
	s, ok := t.Get(key)
	if !ok || s.Base().ID != id {
		var zero S
		return zero, false
	}
	return s, true
}

// Remove deletes the entry under key if it is still the session with id.
// A newer session started under the same key is left alone.
func (t *Table[S]) Remove(key Key, id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.live[key]
	if !ok || s.Base().ID != id {
		return false
	}
	delete(t.live, key)
	return true
}

// Len returns the number of stored sessions.
func (t *Table[S]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}

// Active returns the number of stored sessions that are still active.
func (t *Table[S]) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, s := range t.live {
		if s.Base().Active() {
			n++
		}
	}
	return n
}
