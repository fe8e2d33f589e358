package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"cinderella-bot/internal/model"
	"cinderella-bot/internal/store"
)

func newProfileService(t testing.TB) (*ProfileService, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), store.NewMemoryPersister())
	require.NoError(t, err)
	return NewProfileService(st), st
}

func TestCreditFindAndHarvest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newProfileService(t)

	rec, err := svc.CreditFind(ctx, -1, 7, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.Coins)
	assert.Equal(t, 1, rec.FoundCount)

	rec, err = svc.CreditHarvest(ctx, -1, 7, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(160), rec.Coins)
	assert.Equal(t, 1, rec.GrownCount)
	assert.Equal(t, 1, svc.GrowthHistory(-1, 7))
	assert.Equal(t, 0, svc.GrowthHistory(-2, 7), "records are per chat")

	assert.Equal(t, int64(2), svc.Group(-1).GameCount)

	p := svc.Profile(-1, 7)
	assert.Equal(t, int64(160), p.Record.Coins)
	assert.Equal(t, 0, p.Warnings)
}

func TestRollLuck(t *testing.T) {
	ctx := context.Background()
	svc, _ := newProfileService(t)
	svc.SetLuckRoller(func() int { return 80 })

	roll, err := svc.RollLuck(ctx, -1, 7)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLuck, roll.Old)
	assert.Equal(t, 80, roll.New)
	assert.Equal(t, 30, roll.Delta())

	svc.SetLuckRoller(func() int { return 500 })
	roll, err = svc.RollLuck(ctx, -1, 7)
	require.NoError(t, err)
	assert.Equal(t, model.MaxLuck, roll.New, "luck is clamped")
}

func TestGroupSettings(t *testing.T) {
	ctx := context.Background()
	svc, _ := newProfileService(t)

	settings, err := svc.SetGroupSetting(ctx, -1, SettingGames, false)
	require.NoError(t, err)
	assert.False(t, settings.GamesEnabled)
	assert.True(t, settings.WelcomeEnabled)

	settings, err = svc.SetGroupSetting(ctx, -1, SettingWelcome, false)
	require.NoError(t, err)
	assert.False(t, settings.WelcomeEnabled)

	_, err = svc.SetGroupSetting(ctx, -1, "fireworks", true)
	assert.ErrorIs(t, err, ErrUnknownSetting)

	require.NoError(t, svc.CountMessage(ctx, -1))
	require.NoError(t, svc.CountMessage(ctx, -1))
	assert.Equal(t, int64(2), svc.Group(-1).MessageCount)
	assert.False(t, svc.Group(-1).Settings.GamesEnabled)
}

func TestCreditReturnsStorageError(t *testing.T) {
	ctx := context.Background()
	p := store.NewMemoryPersister()
	st, err := store.Open(ctx, p)
	require.NoError(t, err)
	svc := NewProfileService(st)

	p.FailWith(errors.New("read-only filesystem"))
	rec, err := svc.CreditFind(ctx, -1, 7, 100)
	require.Error(t, err)
	assert.True(t, store.IsStorageError(err))
	assert.Equal(t, int64(100), rec.Coins)
	assert.Equal(t, int64(100), st.User(-1, 7).Coins, "memory keeps the credit")
}

// TestConcurrentCreditsProperty checks that concurrent credits to one user
// are never lost.
func TestConcurrentCreditsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		st, err := store.Open(ctx, store.NewMemoryPersister())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		svc := NewProfileService(st)

		rewards := rapid.SliceOfN(rapid.Int64Range(1, 500), 1, 25).Draw(t, "rewards")
		var want int64
		for _, r := range rewards {
			want += r
		}

		var wg sync.WaitGroup
		wg.Add(len(rewards))
		for i, r := range rewards {
			go func(i int, r int64) {
				defer wg.Done()
				if i%2 == 0 {
					_, _ = svc.CreditFind(ctx, -1, 7, r)
				} else {
					_, _ = svc.CreditHarvest(ctx, -1, 7, r)
				}
			}(i, r)
		}
		wg.Wait()

		rec := st.User(-1, 7)
		if rec.Coins != want {
			t.Fatalf("coins %d, want %d", rec.Coins, want)
		}
		if rec.FoundCount+rec.GrownCount != len(rewards) {
			t.Fatalf("counters %d+%d, want %d", rec.FoundCount, rec.GrownCount, len(rewards))
		}
		if st.Group(-1).GameCount != int64(len(rewards)) {
			t.Fatalf("game count %d, want %d", st.Group(-1).GameCount, len(rewards))
		}
	})
}
