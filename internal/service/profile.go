// Package service provides business logic on top of the state store.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog/log"

	"cinderella-bot/internal/model"
	"cinderella-bot/internal/pkg/lock"
	"cinderella-bot/internal/store"
)

// Group settings that admins can toggle.
const (
	SettingWelcome = "welcome"
	SettingGames   = "games"
)

// ErrUnknownSetting is returned for a setting name other than the known ones.
var ErrUnknownSetting = errors.New("unknown group setting")

// Profile is what /profile shows about a user.
type Profile struct {
	Record   model.UserRecord
	Warnings int
}

// LuckRoll is the result of a fortune.
type LuckRoll struct {
	Old int
	New int
}

// Delta returns the change in luck.
func (r LuckRoll) Delta() int {
	return r.New - r.Old
}

// ProfileService handles user and group records. Every read-modify-write
// holds the scope lock so concurrent credits are never lost.
type ProfileService struct {
	store *store.Store
	locks *lock.KeyedLock[model.Scope]
	roll  func() int
}

// NewProfileService creates a new ProfileService instance.
func NewProfileService(st *store.Store) *ProfileService {
	return &ProfileService{
		store: st,
		locks: lock.New[model.Scope](),
		roll: func() int {
			return rand.Intn(model.MaxLuck) + 1
		},
	}
}

// SetLuckRoller replaces the luck generator. It must return 1..100.
func (s *ProfileService) SetLuckRoller(fn func() int) {
	s.roll = fn
}

// Profile returns a user's record and warning count.
func (s *ProfileService) Profile(chatID, userID int64) *Profile {
	return &Profile{
		Record:   s.store.User(chatID, userID),
		Warnings: s.store.Warnings(chatID, userID),
	}
}

// updateUser applies fn to a user's record under the scope lock.
// A storage error is returned together with the updated record.
func (s *ProfileService) updateUser(ctx context.Context, chatID, userID int64, fn func(*model.UserRecord)) (model.UserRecord, error) {
	scope := model.UserScope(chatID, userID)
	s.locks.Lock(scope)
	defer s.locks.Unlock(scope)

	rec := s.store.User(chatID, userID)
	fn(&rec)
	if err := s.store.PutUser(ctx, chatID, userID, rec); err != nil {
		return rec, fmt.Errorf("failed to save user: %w", err)
	}
	return rec, nil
}

// CreditFind rewards a slipper find.
func (s *ProfileService) CreditFind(ctx context.Context, chatID, userID, reward int64) (model.UserRecord, error) {
	rec, err := s.updateUser(ctx, chatID, userID, func(r *model.UserRecord) {
		r.Coins += reward
		r.FoundCount++
	})
	s.recordGame(ctx, chatID)
	return rec, err
}

// CreditHarvest rewards a pumpkin harvest.
func (s *ProfileService) CreditHarvest(ctx context.Context, chatID, userID, reward int64) (model.UserRecord, error) {
	rec, err := s.updateUser(ctx, chatID, userID, func(r *model.UserRecord) {
		r.Coins += reward
		r.GrownCount++
	})
	s.recordGame(ctx, chatID)
	return rec, err
}

// GrowthHistory returns how many pumpkins a user has harvested.
func (s *ProfileService) GrowthHistory(chatID, userID int64) int {
	return s.store.User(chatID, userID).GrownCount
}

// RollLuck sets a user's luck to a fresh random value.
func (s *ProfileService) RollLuck(ctx context.Context, chatID, userID int64) (LuckRoll, error) {
	var roll LuckRoll
	_, err := s.updateUser(ctx, chatID, userID, func(r *model.UserRecord) {
		roll.Old = r.Luck
		roll.New = min(max(s.roll(), 1), model.MaxLuck)
		r.Luck = roll.New
	})
	return roll, err
}

// updateGroup applies fn to a group record under the group lock.
func (s *ProfileService) updateGroup(ctx context.Context, chatID int64, fn func(*model.GroupRecord)) (model.GroupRecord, error) {
	scope := model.GroupScope(chatID)
	s.locks.Lock(scope)
	defer s.locks.Unlock(scope)

	rec := s.store.Group(chatID)
	fn(&rec)
	if err := s.store.PutGroup(ctx, chatID, rec); err != nil {
		return rec, fmt.Errorf("failed to save group: %w", err)
	}
	return rec, nil
}

// recordGame bumps the game counter after a payout. Failures only affect
// statistics, so they are logged and dropped.
func (s *ProfileService) recordGame(ctx context.Context, chatID int64) {
	if err := s.RecordGame(ctx, chatID); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to record game")
	}
}

// RecordGame bumps the finished game counter of a chat.
func (s *ProfileService) RecordGame(ctx context.Context, chatID int64) error {
	_, err := s.updateGroup(ctx, chatID, func(g *model.GroupRecord) {
		g.GameCount++
	})
	return err
}

// CountMessage bumps the message counter of a chat.
func (s *ProfileService) CountMessage(ctx context.Context, chatID int64) error {
	_, err := s.updateGroup(ctx, chatID, func(g *model.GroupRecord) {
		g.MessageCount++
	})
	return err
}

// Group returns a chat's record.
func (s *ProfileService) Group(chatID int64) model.GroupRecord {
	return s.store.Group(chatID)
}

// SetGroupSetting switches one of the group toggles.
func (s *ProfileService) SetGroupSetting(ctx context.Context, chatID int64, name string, enabled bool) (model.GroupSettings, error) {
	switch name {
	case SettingWelcome, SettingGames:
	default:
		return model.GroupSettings{}, fmt.Errorf("%w: %q", ErrUnknownSetting, name)
	}

	rec, err := s.updateGroup(ctx, chatID, func(g *model.GroupRecord) {
		if name == SettingWelcome {
			g.Settings.WelcomeEnabled = enabled
		} else {
			g.Settings.GamesEnabled = enabled
		}
	})
	return rec.Settings, err
}
