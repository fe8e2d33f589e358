package service

import (
	"cinderella-bot/internal/store"
)

// DefaultLeaderboardSize is the number of entries /top shows.
const DefaultLeaderboardSize = 10

// RankingService builds the royal treasury leaderboard of a chat.
type RankingService struct {
	store *store.Store
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(st *store.Store) *RankingService {
	return &RankingService{store: st}
}

// TopUsers returns the richest users of a chat, at most limit entries.
// A non-positive limit means DefaultLeaderboardSize.
func (s *RankingService) TopUsers(chatID int64, limit int) []store.RankedUser {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	return s.store.TopUsers(chatID, limit)
}

// Stats summarizes the whole store for /status.
func (s *RankingService) Stats() store.Stats {
	return s.store.Stats()
}
