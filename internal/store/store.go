// Package store keeps the bot's persistent state: per-chat user records,
// group records, warning counters, rules and the admin cache.
//
// The whole state lives in memory and is written out as one snapshot after
// every mutation. Reads never touch the snapshot; records that were never
// written are returned as defaults without being stored.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cinderella-bot/internal/model"
)

// Persister loads and saves encoded snapshots.
type Persister interface {
	// Load returns the stored snapshot or ErrNoSnapshot.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, data []byte) error
	Close() error
}

// Stats summarizes the store contents.
type Stats struct {
	Users  int
	Groups int
}

// Store is the process-wide state store.
type Store struct {
	mu        sync.RWMutex
	snap      *model.Snapshot
	persister Persister
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created_at defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open loads the snapshot from p. When p holds no snapshot an empty one is
// written immediately. A snapshot that cannot be read or decoded is an error
// so that existing data is never overwritten with an empty state.
func Open(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persister: p,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := p.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		s.snap = model.NewSnapshot()
		log.Info().Msg("No snapshot found, starting with empty state")
		if err := s.persist(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	s.snap = snap

	log.Info().
		Int("version", snap.Version).
		Int("groups", len(snap.Groups)).
		Msg("Snapshot loaded")

	return s, nil
}

// Close releases the persister.
func (s *Store) Close() error {
	return s.persister.Close()
}

// persist writes the snapshot. Callers hold the write lock.
func (s *Store) persist(ctx context.Context) error {
	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}
	if err := s.persister.Save(ctx, data); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

// User returns the record of a user in a chat, or a fresh default.
func (s *Store) User(chatID, userID int64) model.UserRecord {
	scope := model.UserScope(chatID, userID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.snap.Users[scope.ChatKey()][scope.UserKey()]; ok {
		return rec
	}
	return model.NewUserRecord(s.now())
}

// PutUser replaces a user record and persists the snapshot.
func (s *Store) PutUser(ctx context.Context, chatID, userID int64, rec model.UserRecord) error {
	scope := model.UserScope(chatID, userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.snap.Users[scope.ChatKey()]
	if users == nil {
		users = make(map[string]model.UserRecord)
		s.snap.Users[scope.ChatKey()] = users
	}
	users[scope.UserKey()] = rec

	return s.persist(ctx)
}

// Group returns the record of a chat, or a fresh default.
func (s *Store) Group(chatID int64) model.GroupRecord {
	key := model.GroupScope(chatID).ChatKey()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.snap.Groups[key]; ok {
		return rec
	}
	return model.NewGroupRecord(s.now())
}

// PutGroup replaces a group record and persists the snapshot.
func (s *Store) PutGroup(ctx context.Context, chatID int64, rec model.GroupRecord) error {
	key := model.GroupScope(chatID).ChatKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Groups[key] = rec
	return s.persist(ctx)
}

// Warnings returns the warning count of a user, zero when none was issued.
func (s *Store) Warnings(chatID, userID int64) int {
	scope := model.UserScope(chatID, userID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snap.Warnings[scope.ChatKey()][scope.UserKey()]
}

// IncrementWarning adds one warning and returns the new count.
func (s *Store) IncrementWarning(ctx context.Context, chatID, userID int64) (int, error) {
	return s.updateWarning(ctx, chatID, userID, func(n int) int { return n + 1 })
}

// DecrementWarning removes one warning, never going below zero.
func (s *Store) DecrementWarning(ctx context.Context, chatID, userID int64) (int, error) {
	return s.updateWarning(ctx, chatID, userID, func(n int) int { return max(n-1, 0) })
}

// ResetWarnings clears all warnings of a user.
func (s *Store) ResetWarnings(ctx context.Context, chatID, userID int64) (int, error) {
	return s.updateWarning(ctx, chatID, userID, func(int) int { return 0 })
}

func (s *Store) updateWarning(ctx context.Context, chatID, userID int64, fn func(int) int) (int, error) {
	scope := model.UserScope(chatID, userID)
	chatKey, userKey := scope.ChatKey(), scope.UserKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.snap.Warnings[chatKey]
	current := counts[userKey]
	next := fn(current)
	if next == current && next == 0 {
		// Nothing recorded and nothing to record.
		return 0, nil
	}

	if next == 0 {
		delete(counts, userKey)
		if len(counts) == 0 {
			delete(s.snap.Warnings, chatKey)
		}
	} else {
		if counts == nil {
			counts = make(map[string]int)
			s.snap.Warnings[chatKey] = counts
		}
		counts[userKey] = next
	}

	return next, s.persist(ctx)
}

// Rules returns the rules text of a chat and whether any was set.
func (s *Store) Rules(chatID int64) (string, bool) {
	key := model.GroupScope(chatID).ChatKey()

	s.mu.RLock()
	defer s.mu.RUnlock()

	text, ok := s.snap.Rules[key]
	return text, ok && text != ""
}

// SetRules replaces the rules text of a chat.
func (s *Store) SetRules(ctx context.Context, chatID int64, text string) error {
	key := model.GroupScope(chatID).ChatKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Rules[key] = text
	return s.persist(ctx)
}

// CachedAdmins returns the admin ids last fetched from the gateway.
func (s *Store) CachedAdmins(chatID int64) []int64 {
	key := model.GroupScope(chatID).ChatKey()

	s.mu.RLock()
	defer s.mu.RUnlock()

	cached := s.snap.Admins[key]
	ids := make([]int64, 0, len(cached))
	for _, raw := range cached {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// SetAdmins replaces the cached admin set of a chat.
func (s *Store) SetAdmins(ctx context.Context, chatID int64, ids []int64) error {
	key := model.GroupScope(chatID).ChatKey()

	encoded := make([]string, 0, len(ids))
	for _, id := range ids {
		encoded = append(encoded, strconv.FormatInt(id, 10))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Admins[key] = encoded
	return s.persist(ctx)
}

// Admins returns the cached admins of a chat unioned with the static ids.
// The static ids are never written to the snapshot.
func (s *Store) Admins(chatID int64, static []int64) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, id := range append(s.CachedAdmins(chatID), static...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsAdmin reports whether userID is a cached or static admin of the chat.
func (s *Store) IsAdmin(chatID, userID int64, static []int64) bool {
	for _, id := range s.Admins(chatID, static) {
		if id == userID {
			return true
		}
	}
	return false
}

// Stats counts distinct users across all chats and known groups.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]struct{})
	for _, chat := range s.snap.Users {
		for userKey := range chat {
			users[userKey] = struct{}{}
		}
	}
	return Stats{Users: len(users), Groups: len(s.snap.Groups)}
}

// KnownGroups returns the ids of every chat with a group record.
func (s *Store) KnownGroups() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.snap.Groups))
	for key := range s.snap.Groups {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RankedUser is one leaderboard entry.
type RankedUser struct {
	UserID int64
	Record model.UserRecord
}

// TopUsers returns the richest users of a chat, ties broken by user id.
func (s *Store) TopUsers(chatID int64, limit int) []RankedUser {
	key := model.GroupScope(chatID).ChatKey()

	s.mu.RLock()
	ranked := make([]RankedUser, 0, len(s.snap.Users[key]))
	for userKey, rec := range s.snap.Users[key] {
		id, err := strconv.ParseInt(userKey, 10, 64)
		if err != nil {
			continue
		}
		ranked = append(ranked, RankedUser{UserID: id, Record: rec})
	}
	s.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Record.Coins != ranked[j].Record.Coins {
			return ranked[i].Record.Coins > ranked[j].Record.Coins
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
