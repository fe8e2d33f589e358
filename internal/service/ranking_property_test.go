package service

import (
	"context"
	"sort"
	"testing"

	"pgregory.net/rapid"

	"cinderella-bot/internal/store"
)

// TestTopUsersOrderingProperty checks that the leaderboard is sorted by
// coins descending, ties by user id, and respects the limit.
func TestTopUsersOrderingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		st, err := store.Open(ctx, store.NewMemoryPersister())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		defer st.Close()

		profiles := NewProfileService(st)
		ranking := NewRankingService(st)
		const chatID = -100

		coins := rapid.MapOfN(rapid.Int64Range(1, 1000), rapid.Int64Range(1, 500), 1, 30).Draw(t, "coins")
		for userID, amount := range coins {
			if _, err := profiles.CreditFind(ctx, chatID, userID, amount); err != nil {
				t.Fatalf("credit: %v", err)
			}
		}
		// Another chat must not leak into the leaderboard.
		if _, err := profiles.CreditFind(ctx, -200, 1, 1_000_000); err != nil {
			t.Fatalf("credit: %v", err)
		}

		limit := rapid.IntRange(1, len(coins)+5).Draw(t, "limit")
		top := ranking.TopUsers(chatID, limit)

		if want := min(limit, len(coins)); len(top) != want {
			t.Fatalf("expected %d entries, got %d", want, len(top))
		}

		for i := 1; i < len(top); i++ {
			prev, cur := top[i-1], top[i]
			if prev.Record.Coins < cur.Record.Coins ||
				(prev.Record.Coins == cur.Record.Coins && prev.UserID > cur.UserID) {
				t.Fatalf("entries %d and %d out of order: %+v, %+v", i-1, i, prev, cur)
			}
		}

		all := make([]int64, 0, len(coins))
		for _, amount := range coins {
			all = append(all, amount)
		}
		sort.Slice(all, func(i, j int) bool { return all[i] > all[j] })
		for i, e := range top {
			if e.Record.Coins != all[i] {
				t.Fatalf("entry %d has %d coins, want %d", i, e.Record.Coins, all[i])
			}
			if coins[e.UserID] != e.Record.Coins {
				t.Fatalf("user %d shows %d coins, credited %d", e.UserID, e.Record.Coins, coins[e.UserID])
			}
		}
	})
}
