// Package model defines the records kept by the state store.
package model

import (
	"strconv"
	"time"
)

// Default values for lazily materialized records.
const (
	DefaultLuck = 50
	MaxLuck     = 100
)

// Scope addresses a record by chat and, optionally, user.
// UserID is zero for group-level records.
type Scope struct {
	ChatID int64
	UserID int64
}

// GroupScope returns the group-only scope for a chat.
func GroupScope(chatID int64) Scope {
	return Scope{ChatID: chatID}
}

// UserScope returns the scope of a user inside a chat.
func UserScope(chatID, userID int64) Scope {
	return Scope{ChatID: chatID, UserID: userID}
}

// ChatKey returns the string-encoded chat identifier used in the snapshot.
func (s Scope) ChatKey() string {
	return strconv.FormatInt(s.ChatID, 10)
}

// UserKey returns the string-encoded user identifier used in the snapshot.
func (s Scope) UserKey() string {
	return strconv.FormatInt(s.UserID, 10)
}

// UserRecord holds per-chat statistics of one user.
type UserRecord struct {
	Coins      int64     `json:"coins"`
	Luck       int       `json:"luck"`
	FoundCount int       `json:"found_count"`
	GrownCount int       `json:"grown_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewUserRecord returns the default record for a user seen for the first time.
func NewUserRecord(now time.Time) UserRecord {
	return UserRecord{
		Luck:      DefaultLuck,
		CreatedAt: now,
	}
}

// GroupSettings are per-group feature toggles.
type GroupSettings struct {
	WelcomeEnabled bool `json:"welcome_enabled"`
	GamesEnabled   bool `json:"games_enabled"`
}

// GroupRecord holds per-chat statistics and settings.
type GroupRecord struct {
	CreatedAt    time.Time     `json:"created_at"`
	MessageCount int64         `json:"message_count"`
	GameCount    int64         `json:"game_count"`
	Settings     GroupSettings `json:"settings"`
}

// NewGroupRecord returns the default record for a chat seen for the first time.
func NewGroupRecord(now time.Time) GroupRecord {
	return GroupRecord{
		CreatedAt: now,
		Settings: GroupSettings{
			WelcomeEnabled: true,
			GamesEnabled:   true,
		},
	}
}

// SnapshotVersion is the snapshot layout written by this binary.
const SnapshotVersion = 1

// Snapshot is the whole persisted state. All ids are string-encoded.
type Snapshot struct {
	Version  int                              `json:"version"`
	Users    map[string]map[string]UserRecord `json:"users"`
	Groups   map[string]GroupRecord           `json:"groups"`
	Admins   map[string][]string              `json:"admins"`
	Warnings map[string]map[string]int        `json:"warnings"`
	Rules    map[string]string                `json:"rules"`
}

// NewSnapshot returns an empty snapshot at the current version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version:  SnapshotVersion,
		Users:    make(map[string]map[string]UserRecord),
		Groups:   make(map[string]GroupRecord),
		Admins:   make(map[string][]string),
		Warnings: make(map[string]map[string]int),
		Rules:    make(map[string]string),
	}
}

// Normalize replaces nil maps with empty ones and brings every record
// back into range: coins and counters are never negative, luck stays in
// [0, MaxLuck] and only positive warning counters are kept.
func (s *Snapshot) Normalize() {
	s.normalizeMaps()

	for chatKey, users := range s.Users {
		if users == nil {
			delete(s.Users, chatKey)
			continue
		}
		for userKey, u := range users {
			u.Coins = max(u.Coins, 0)
			u.Luck = min(max(u.Luck, 0), MaxLuck)
			u.FoundCount = max(u.FoundCount, 0)
			u.GrownCount = max(u.GrownCount, 0)
			users[userKey] = u
		}
	}

	for chatKey, g := range s.Groups {
		g.MessageCount = max(g.MessageCount, 0)
		g.GameCount = max(g.GameCount, 0)
		s.Groups[chatKey] = g
	}

	for chatKey, counts := range s.Warnings {
		for userKey, n := range counts {
			if n <= 0 {
				delete(counts, userKey)
			}
		}
		if len(counts) == 0 {
			delete(s.Warnings, chatKey)
		}
	}

	for chatKey, ids := range s.Admins {
		if ids == nil {
			delete(s.Admins, chatKey)
		}
	}
}

func (s *Snapshot) normalizeMaps() {
	if s.Users == nil {
		s.Users = make(map[string]map[string]UserRecord)
	}
	if s.Groups == nil {
		s.Groups = make(map[string]GroupRecord)
	}
	if s.Admins == nil {
		s.Admins = make(map[string][]string)
	}
	if s.Warnings == nil {
		s.Warnings = make(map[string]map[string]int)
	}
	if s.Rules == nil {
		s.Rules = make(map[string]string)
	}
}
