// Package garden implements the pumpkin garden: every member plants their
// own pumpkin, which grows with wall-clock time and can be harvested for
// coins once its growing period is over.
//
// Growth is evaluated lazily whenever a plot is queried, so no timers run.
package garden

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cinderella-bot/internal/game"
	"cinderella-bot/internal/model"
)

// Defaults for the garden.
const (
	DefaultHourUnit      = time.Hour
	DefaultMaxSize       = 10
	DefaultRewardPerUnit = 10

	maxBaseBonus = 5
	maxGrowUnits = 6
	minGrowUnits = 1
)

// ErrNotReady is returned when harvesting a pumpkin that is still growing.
var ErrNotReady = errors.New("pumpkin is still growing")

// Config holds garden parameters.
type Config struct {
	HourUnit      time.Duration
	MaxSize       int
	RewardPerUnit int64
}

// DefaultConfig returns the standard garden settings.
func DefaultConfig() Config {
	return Config{
		HourUnit:      DefaultHourUnit,
		MaxSize:       DefaultMaxSize,
		RewardPerUnit: DefaultRewardPerUnit,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HourUnit <= 0 {
		c.HourUnit = d.HourUnit
	}
	if c.MaxSize <= 0 {
		c.MaxSize = d.MaxSize
	}
	if c.RewardPerUnit <= 0 {
		c.RewardPerUnit = d.RewardPerUnit
	}
	return c
}

// BaseSize is the starting size for a gardener with the given number of
// past harvests.
func BaseSize(history int) int {
	return 1 + min(max(history, 0)/3, maxBaseBonus)
}

// GrowDuration is how long a pumpkin takes to ripen for a gardener with the
// given number of past harvests.
func GrowDuration(history int, unit time.Duration) time.Duration {
	units := max(maxGrowUnits-max(history, 0)/5, minGrowUnits)
	return time.Duration(units) * unit
}

// SizeAt returns the size after elapsed time: one size per unit on top of
// base, capped at maxSize.
func SizeAt(base int, elapsed, unit time.Duration, maxSize int) int {
	if elapsed < 0 {
		elapsed = 0
	}
	return min(base+int(elapsed/unit), maxSize)
}

// Plot is one planted pumpkin.
type Plot struct {
	*game.Session
	UserID   int64
	BaseSize int
	Duration time.Duration
}

// PlantedAt returns the planting time.
func (p *Plot) PlantedAt() time.Time {
	return p.StartedAt
}

// Growth is a snapshot of a plot at some point in time.
type Growth struct {
	Plot      *Plot
	Ready     bool
	Size      int
	Remaining time.Duration
	// Reward is what harvesting now would pay. Zero while growing.
	Reward int64
}

// Keeper provides gardening history and credits harvests.
type Keeper interface {
	GrowthHistory(chatID, userID int64) int
	CreditHarvest(ctx context.Context, chatID, userID, reward int64) (model.UserRecord, error)
}

// Harvest is the result of a successful harvest.
type Harvest struct {
	Size   int
	Reward int64
	Record model.UserRecord
}

// Game runs the pumpkin garden.
type Game struct {
	cfg    Config
	table  *game.Table[*Plot]
	keeper Keeper

	mu  sync.RWMutex
	now func() time.Time
}

// New creates a garden.
func New(cfg Config, keeper Keeper) *Game {
	return &Game{
		cfg:    cfg.withDefaults(),
		table:  game.NewTable[*Plot](),
		keeper: keeper,
		now:    time.Now,
	}
}

// Name returns the game's display name.
func (g *Game) Name() string {
	return "Pumpkin Garden"
}

// Command returns the command that plants, checks and harvests.
func (g *Game) Command() string {
	return "pumpkin"
}

// Description returns a brief description of the game.
func (g *Game) Description() string {
	return "Grow a magical pumpkin coach and harvest it for royal coins"
}

// Kind returns game.KindGarden.
func (g *Game) Kind() game.Kind {
	return game.KindGarden
}

// Live returns the number of pumpkins in the ground.
func (g *Game) Live() int {
	return g.table.Active()
}

// Config returns the effective configuration.
func (g *Game) Config() Config {
	return g.cfg
}

// SetClock replaces the wall clock.
func (g *Game) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

func (g *Game) clock() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.now()
}

func key(chatID, userID int64) game.Key {
	return game.UserKey(chatID, userID, game.KindGarden)
}

// Plant puts a new pumpkin in the ground for a user.
func (g *Game) Plant(_ context.Context, chatID, userID int64) (*Plot, error) {
	history := g.keeper.GrowthHistory(chatID, userID)
	duration := GrowDuration(history, g.cfg.HourUnit)

	p := &Plot{
		Session:  game.NewSession(chatID, game.KindGarden, g.clock(), duration),
		UserID:   userID,
		BaseSize: BaseSize(history),
		Duration: duration,
	}
	if err := g.table.Start(key(chatID, userID), p); err != nil {
		return nil, err
	}

	log.Info().
		Int64("chat_id", chatID).
		Int64("user_id", userID).
		Int("base_size", p.BaseSize).
		Dur("duration", duration).
		Msg("Pumpkin planted")

	return p, nil
}

// Plot returns the user's active plot.
func (g *Game) Plot(chatID, userID int64) (*Plot, bool) {
	p, ok := g.table.Get(key(chatID, userID))
	if !ok || !p.Active() {
		return nil, false
	}
	return p, true
}

// Query reports the growth of the user's plot right now.
func (g *Game) Query(chatID, userID int64) (*Growth, error) {
	return g.QueryAt(chatID, userID, g.clock())
}

// QueryAt reports the growth of the user's plot at now.
func (g *Game) QueryAt(chatID, userID int64, now time.Time) (*Growth, error) {
	p, ok := g.Plot(chatID, userID)
	if !ok {
		return nil, game.ErrNoActiveGame
	}
	return g.evaluate(p, now), nil
}

func (g *Game) evaluate(p *Plot, now time.Time) *Growth {
	elapsed := now.Sub(p.StartedAt)
	growth := &Growth{
		Plot:      p,
		Size:      SizeAt(p.BaseSize, elapsed, g.cfg.HourUnit, g.cfg.MaxSize),
		Remaining: p.Remaining(now),
	}
	if elapsed >= p.Duration {
		growth.Ready = true
		growth.Reward = int64(growth.Size) * g.cfg.RewardPerUnit
	}
	return growth
}

// Harvest picks a ripe pumpkin, removes the plot and credits the reward.
// Each plot pays out at most once.
func (g *Game) Harvest(ctx context.Context, chatID, userID int64) (*Harvest, error) {
	p, ok := g.Plot(chatID, userID)
	if !ok {
		return nil, game.ErrNoActiveGame
	}

	growth := g.evaluate(p, g.clock())
	if !growth.Ready {
		return nil, fmt.Errorf("%w: %s left", ErrNotReady, growth.Remaining.Round(time.Minute))
	}

	if !p.Finish(game.StatusWon) {
		return nil, game.ErrNoActiveGame
	}
	g.table.Remove(key(chatID, userID), p.ID)

	log.Info().
		Int64("chat_id", chatID).
		Int64("user_id", userID).
		Int("size", growth.Size).
		Int64("reward", growth.Reward).
		Msg("Pumpkin harvested")

	rec, err := g.keeper.CreditHarvest(ctx, chatID, userID, growth.Reward)
	return &Harvest{Size: growth.Size, Reward: growth.Reward, Record: rec}, err
}
