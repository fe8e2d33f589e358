package handler

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cinderella-bot/internal/store"
)

// AdminLister fetches the administrators of a chat from the gateway.
type AdminLister interface {
	AdminsOf(chat *tele.Chat) ([]tele.ChatMember, error)
}

// AdminPolicy decides who belongs to the royal court: the static allow-list
// plus the cached chat administrators. The cache is filled on first use and
// refreshed by the scheduler.
type AdminPolicy struct {
	static []int64
	store  *store.Store
	lister AdminLister
}

// NewAdminPolicy creates an AdminPolicy.
func NewAdminPolicy(static []int64, st *store.Store, lister AdminLister) *AdminPolicy {
	return &AdminPolicy{
		static: slices.Clone(static),
		store:  st,
		lister: lister,
	}
}

// IsStatic reports whether userID is on the static allow-list.
func (p *AdminPolicy) IsStatic(userID int64) bool {
	return slices.Contains(p.static, userID)
}

// IsAdmin reports whether userID administers chatID.
func (p *AdminPolicy) IsAdmin(ctx context.Context, chatID, userID int64) bool {
	if p.IsStatic(userID) {
		return true
	}
	if chatID < 0 && len(p.store.CachedAdmins(chatID)) == 0 {
		if _, err := p.Refresh(ctx, chatID); err != nil && !store.IsStorageError(err) {
			log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to fetch chat admins")
		}
	}
	return p.store.IsAdmin(chatID, userID, p.static)
}

// Refresh replaces the cached administrators of chatID.
func (p *AdminPolicy) Refresh(ctx context.Context, chatID int64) ([]int64, error) {
	if p.lister == nil {
		return nil, fmt.Errorf("no admin lister configured")
	}

	members, err := p.lister.AdminsOf(&tele.Chat{ID: chatID})
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User == nil {
			continue
		}
		if m.Role == tele.Administrator || m.Role == tele.Creator {
			ids = append(ids, m.User.ID)
		}
	}

	if err := p.store.SetAdmins(ctx, chatID, ids); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to persist admin cache")
		return ids, err
	}
	return ids, nil
}

// RefreshAll refreshes every known group and returns how many succeeded.
func (p *AdminPolicy) RefreshAll(ctx context.Context) int {
	ok := 0
	for _, chatID := range p.store.KnownGroups() {
		if ctx.Err() != nil {
			break
		}
		if chatID >= 0 {
			continue
		}
		if _, err := p.Refresh(ctx, chatID); err != nil {
			log.Debug().Err(err).Int64("chat_id", chatID).Msg("Admin refresh failed")
			continue
		}
		ok++
	}
	return ok
}
