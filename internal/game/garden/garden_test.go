package garden

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"cinderella-bot/internal/game"
	"cinderella-bot/internal/model"
)

type memKeeper struct {
	mu      sync.Mutex
	history int
	coins   int64
	credits int
}

func (k *memKeeper) GrowthHistory(int64, int64) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.history
}

func (k *memKeeper) CreditHarvest(_ context.Context, _, _, reward int64) (model.UserRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.coins += reward
	k.history++
	k.credits++
	return model.UserRecord{Coins: k.coins, GrownCount: k.history, Luck: model.DefaultLuck}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGarden(history int) (*Game, *memKeeper, *fakeClock) {
	keeper := &memKeeper{history: history}
	clock := &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	g := New(DefaultConfig(), keeper)
	g.SetClock(clock.Now)
	return g, keeper, clock
}

func TestCurves(t *testing.T) {
	tests := []struct {
		history  int
		base     int
		duration time.Duration
	}{
		{0, 1, 6 * time.Hour},
		{2, 1, 6 * time.Hour},
		{3, 2, 6 * time.Hour},
		{5, 2, 5 * time.Hour},
		{15, 6, 3 * time.Hour},
		{25, 6, time.Hour},
		{100, 6, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.base, BaseSize(tt.history), "base for %d", tt.history)
		assert.Equal(t, tt.duration, GrowDuration(tt.history, time.Hour), "duration for %d", tt.history)
	}
}

func TestPlantQueryHarvest(t *testing.T) {
	ctx := context.Background()
	g, keeper, clock := newGarden(0)

	p, err := g.Plant(ctx, -1, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, p.BaseSize)
	assert.Equal(t, 6*time.Hour, p.Duration)

	_, err = g.Plant(ctx, -1, 7)
	assert.ErrorIs(t, err, game.ErrGameAlreadyActive)

	clock.Advance(2*time.Hour + 30*time.Minute)
	growth, err := g.Query(-1, 7)
	require.NoError(t, err)
	assert.False(t, growth.Ready)
	assert.Equal(t, 3, growth.Size)
	assert.Equal(t, 3*time.Hour+30*time.Minute, growth.Remaining)

	_, err = g.Harvest(ctx, -1, 7)
	assert.ErrorIs(t, err, ErrNotReady)

	clock.Advance(4 * time.Hour)
	growth, err = g.Query(-1, 7)
	require.NoError(t, err)
	assert.True(t, growth.Ready)
	assert.Equal(t, 7, growth.Size)
	assert.Equal(t, int64(70), growth.Reward)

	h, err := g.Harvest(ctx, -1, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, h.Size)
	assert.Equal(t, int64(70), h.Reward)
	assert.Equal(t, int64(70), h.Record.Coins)

	_, err = g.Harvest(ctx, -1, 7)
	assert.ErrorIs(t, err, game.ErrNoActiveGame)
	_, err = g.Query(-1, 7)
	assert.ErrorIs(t, err, game.ErrNoActiveGame)
	assert.Equal(t, 1, keeper.credits)
	assert.Equal(t, 0, g.Live())

	// A new plot benefits from the extra harvest.
	_, err = g.Plant(ctx, -1, 7)
	require.NoError(t, err)
}

func TestPlotsArePerUser(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGarden(0)

	_, err := g.Plant(ctx, -1, 7)
	require.NoError(t, err)
	_, err = g.Plant(ctx, -1, 8)
	require.NoError(t, err)
	_, err = g.Plant(ctx, -2, 7)
	require.NoError(t, err)

	assert.Equal(t, 3, g.Live())
}

func TestConcurrentHarvestPaysOnce(t *testing.T) {
	ctx := context.Background()
	g, keeper, clock := newGarden(30)

	_, err := g.Plant(ctx, -1, 7)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Harvest(ctx, -1, 7); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, 1, keeper.credits)
}

// TestGrowthMonotonicProperty checks that size never shrinks with time and
// never exceeds the cap.
func TestGrowthMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		history := rapid.IntRange(0, 200).Draw(t, "history")
		maxSize := rapid.IntRange(1, 20).Draw(t, "maxSize")
		unit := time.Duration(rapid.Int64Range(1, int64(time.Hour)).Draw(t, "unit"))
		steps := rapid.SliceOfN(rapid.Int64Range(0, int64(1000*time.Hour)), 1, 30).Draw(t, "steps")

		base := BaseSize(history)
		var elapsed time.Duration
		prev := SizeAt(base, 0, unit, maxSize)
		for _, step := range steps {
			elapsed += time.Duration(step)
			size := SizeAt(base, elapsed, unit, maxSize)
			if size < prev {
				t.Fatalf("size shrank from %d to %d at %s", prev, size, elapsed)
			}
			if size > maxSize {
				t.Fatalf("size %d exceeds cap %d", size, maxSize)
			}
			prev = size
		}
	})
}

// TestQueryMatchesCurveProperty checks the plot query against the curve.
func TestQueryMatchesCurveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		history := rapid.IntRange(0, 50).Draw(t, "history")
		elapsed := time.Duration(rapid.Int64Range(0, int64(48*time.Hour)).Draw(t, "elapsed"))

		g, _, clock := newGarden(history)
		p, err := g.Plant(context.Background(), -1, 1)
		if err != nil {
			t.Fatalf("plant: %v", err)
		}

		growth, err := g.QueryAt(-1, 1, clock.Now().Add(elapsed))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		wantSize := min(p.BaseSize+int(elapsed/time.Hour), DefaultMaxSize)
		if growth.Size != wantSize {
			t.Fatalf("size %d, want %d", growth.Size, wantSize)
		}
		if growth.Ready != (elapsed >= p.Duration) {
			t.Fatalf("ready=%v at %s of %s", growth.Ready, elapsed, p.Duration)
		}
		if growth.Ready && growth.Reward != int64(wantSize)*DefaultRewardPerUnit {
			t.Fatalf("reward %d for size %d", growth.Reward, wantSize)
		}
	})
}
