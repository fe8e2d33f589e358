package hunt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"cinderella-bot/internal/game"
)

// TestSingleWinnerProperty checks that however many players hit the target
// at once, only one wins and the reward is credited once.
func TestSingleWinnerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		rewards := newMemRewarder()
		g := New(DefaultConfig(), rewards)
		target := Cell{
			Row: rapid.IntRange(0, DefaultRows-1).Draw(t, "row"),
			Col: rapid.IntRange(0, DefaultCols-1).Draw(t, "col"),
		}
		g.SetTargetPicker(fixedTarget(target))

		r, err := g.Start(ctx, -1, 1)
		if err != nil {
			t.Fatalf("start: %v", err)
		}

		players := rapid.IntRange(2, 12).Draw(t, "players")
		var wins, ended atomic.Int32
		var wg sync.WaitGroup
		wg.Add(players)
		for p := 0; p < players; p++ {
			go func(userID int64) {
				defer wg.Done()
				res, err := g.Guess(ctx, -1, r.ID, userID, target)
				switch {
				case errors.Is(err, game.ErrGameEnded):
					ended.Add(1)
				case err == nil && res.Win:
					wins.Add(1)
				}
			}(int64(p + 1))
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Fatalf("expected one winner, got %d", wins.Load())
		}
		if int(wins.Load()+ended.Load()) != players {
			t.Fatalf("every other guess must see the ended game")
		}
		if rewards.Calls() != 1 {
			t.Fatalf("reward credited %d times", rewards.Calls())
		}
	})
}

// TestTimeoutWinRaceProperty checks that a winning guess racing the expiry
// ends in exactly one terminal state.
func TestTimeoutWinRaceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		rewards := newMemRewarder()
		cfg := DefaultConfig()
		cfg.Timeout = time.Duration(rapid.IntRange(1, 3).Draw(t, "timeoutMs")) * time.Millisecond
		g := New(cfg, rewards)
		g.SetTargetPicker(fixedTarget(Cell{}))

		var expiredByTimer atomic.Int32
		g.OnExpire(func(*Outcome) { expiredByTimer.Add(1) })

		r, err := g.Start(ctx, -1, 1)
		if err != nil {
			t.Fatalf("start: %v", err)
		}

		delay := time.Duration(rapid.IntRange(0, 4).Draw(t, "guessDelayMs")) * time.Millisecond
		var won atomic.Bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			time.Sleep(delay)
			if res, err := g.Guess(ctx, -1, r.ID, 2, Cell{}); err == nil && res.Win {
				won.Store(true)
			}
		}()
		go func() {
			defer wg.Done()
			// A manual expiry racing the timer must also be harmless.
			time.Sleep(delay)
			g.Expire(-1, r.ID)
		}()
		wg.Wait()

		// Let a late timer fire, if any.
		time.Sleep(cfg.Timeout + 5*time.Millisecond)

		switch r.Status() {
		case game.StatusWon:
			if !won.Load() || rewards.Calls() != 1 || expiredByTimer.Load() != 0 {
				t.Fatalf("won round: won=%v credits=%d expiries=%d", won.Load(), rewards.Calls(), expiredByTimer.Load())
			}
		case game.StatusExpired:
			if won.Load() || rewards.Calls() != 0 || expiredByTimer.Load() != 1 {
				t.Fatalf("expired round: won=%v credits=%d expiries=%d", won.Load(), rewards.Calls(), expiredByTimer.Load())
			}
		default:
			t.Fatalf("unexpected final status %v", r.Status())
		}
	})
}

// TestFinishedRoundRejectsAnyCellProperty checks that once a round is over,
// every guess reports the ended game, whether or not the cell is on the board.
func TestFinishedRoundRejectsAnyCellProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		g := New(DefaultConfig(), newMemRewarder())

		r, err := g.Start(ctx, -1, 1)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		how := rapid.SampledFrom([]string{"won", "cancelled", "expired"}).Draw(t, "how")
		switch how {
		case "won":
			if _, err := g.Guess(ctx, -1, r.ID, 1, r.Target); err != nil {
				t.Fatalf("winning guess: %v", err)
			}
		case "cancelled":
			if _, err := g.Cancel(-1, r.ID, 1); err != nil {
				t.Fatalf("cancel: %v", err)
			}
		case "expired":
			if _, ok := g.Expire(-1, r.ID); !ok {
				t.Fatal("expire failed")
			}
		}

		cell := Cell{
			Row: rapid.IntRange(-5, DefaultRows+5).Draw(t, "row"),
			Col: rapid.IntRange(-5, DefaultCols+5).Draw(t, "col"),
		}
		if _, err := g.Guess(ctx, -1, r.ID, 2, cell); !errors.Is(err, game.ErrGameEnded) {
			t.Fatalf("guess %v on %s round returned %v", cell, how, err)
		}
	})
}
