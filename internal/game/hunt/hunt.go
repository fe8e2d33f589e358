// Package hunt implements the glass slipper hunt: a slipper is hidden in a
// grid and the first player to pick its cell before the timer runs out wins.
package hunt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cinderella-bot/internal/game"
	"cinderella-bot/internal/model"
)

// Defaults for a hunt.
const (
	DefaultRows    = 3
	DefaultCols    = 3
	DefaultTimeout = 60 * time.Second
	DefaultReward  = 100
)

// ErrInvalidCell is returned for a guess outside the grid.
var ErrInvalidCell = errors.New("cell is outside the grid")

// Config holds hunt parameters.
type Config struct {
	Rows    int
	Cols    int
	Timeout time.Duration
	Reward  int64
}

// DefaultConfig returns the standard 3x3, one minute hunt.
func DefaultConfig() Config {
	return Config{
		Rows:    DefaultRows,
		Cols:    DefaultCols,
		Timeout: DefaultTimeout,
		Reward:  DefaultReward,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Rows <= 0 {
		c.Rows = d.Rows
	}
	if c.Cols <= 0 {
		c.Cols = d.Cols
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Reward <= 0 {
		c.Reward = d.Reward
	}
	return c
}

// Cell is a zero-based grid position.
type Cell struct {
	Row int
	Col int
}

// String renders the cell one-based, the way players see it.
func (c Cell) String() string {
	return fmt.Sprintf("[%d, %d]", c.Row+1, c.Col+1)
}

// Distance returns the Manhattan distance between two cells.
func Distance(a, b Cell) int {
	return abs(a.Row-b.Row) + abs(a.Col-b.Col)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Hint tells a player how close a wrong guess was.
type Hint int

// Proximity hints.
const (
	HintFar Hint = iota
	HintWarm
	HintVeryClose
)

func (h Hint) String() string {
	switch h {
	case HintVeryClose:
		return "very close"
	case HintWarm:
		return "warm"
	default:
		return "far"
	}
}

// Proximity grades a wrong guess: distance 1 is very close, 2 is warm and
// anything further is far.
func Proximity(guess, target Cell) Hint {
	switch d := Distance(guess, target); {
	case d <= 1:
		return HintVeryClose
	case d <= 2:
		return HintWarm
	default:
		return HintFar
	}
}

// Round is one hunt in one chat.
type Round struct {
	*game.Session
	Target    Cell
	StarterID int64

	messageID atomic.Int64
}

// MessageID returns the id of the board message, zero until attached.
func (r *Round) MessageID() int {
	return int(r.messageID.Load())
}

// Rewarder credits the winner of a hunt.
type Rewarder interface {
	CreditFind(ctx context.Context, chatID, userID, reward int64) (model.UserRecord, error)
}

// Outcome describes a finished round.
type Outcome struct {
	Round    *Round
	Status   game.Status
	WinnerID int64
	Reward   int64
	Attempts int
	// Hunters is the number of distinct players who guessed.
	Hunters int
	// Record is the winner's record after crediting. Zero unless Status is Won.
	Record model.UserRecord
}

// GuessResult is the answer to one guess.
type GuessResult struct {
	Win      bool
	Hint     Hint
	Attempts int
	Outcome  *Outcome
}

// Game runs slipper hunts, at most one per chat.
type Game struct {
	cfg     Config
	table   *game.Table[*Round]
	rewards Rewarder

	mu       sync.RWMutex
	pick     func(rows, cols int) Cell
	onExpire func(*Outcome)
	now      func() time.Time
}

// New creates a hunt game.
func New(cfg Config, rewards Rewarder) *Game {
	return &Game{
		cfg:     cfg.withDefaults(),
		table:   game.NewTable[*Round](),
		rewards: rewards,
		pick:    randomCell,
		now:     time.Now,
	}
}

func randomCell(rows, cols int) Cell {
	return Cell{Row: rand.Intn(rows), Col: rand.Intn(cols)}
}

// Name returns the game's display name.
func (g *Game) Name() string {
	return "Glass Slipper Hunt"
}

// Command returns the command that starts a hunt.
func (g *Game) Command() string {
	return "slipper"
}

// Description returns a brief description of the game.
func (g *Game) Description() string {
	return fmt.Sprintf("Find the hidden glass slipper in %s and win %d royal coins",
		g.cfg.Timeout, g.cfg.Reward)
}

// Kind returns game.KindHunt.
func (g *Game) Kind() game.Kind {
	return game.KindHunt
}

// Live returns the number of running hunts.
func (g *Game) Live() int {
	return g.table.Active()
}

// Config returns the effective configuration.
func (g *Game) Config() Config {
	return g.cfg
}

// OnExpire registers the hook run when a round times out.
func (g *Game) OnExpire(fn func(*Outcome)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onExpire = fn
}

// SetTargetPicker replaces the random hiding spot picker.
func (g *Game) SetTargetPicker(fn func(rows, cols int) Cell) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pick = fn
}

func key(chatID int64) game.Key {
	return game.ChatKey(chatID, game.KindHunt)
}

// Start hides a slipper and arms the round timer.
func (g *Game) Start(_ context.Context, chatID, starterID int64) (*Round, error) {
	g.mu.RLock()
	pick := g.pick
	g.mu.RUnlock()

	r := &Round{
		Session:   game.NewSession(chatID, game.KindHunt, g.now(), g.cfg.Timeout),
		Target:    pick(g.cfg.Rows, g.cfg.Cols),
		StarterID: starterID,
	}
	if err := g.table.Start(key(chatID), r); err != nil {
		return nil, err
	}

	id := r.ID
	r.Arm(g.cfg.Timeout, func() {
		g.Expire(chatID, id)
	})

	log.Info().
		Int64("chat_id", chatID).
		Int64("starter_id", starterID).
		Str("round_id", id.String()).
		Msg("Slipper hunt started")

	return r, nil
}

// Active returns the running round of a chat.
func (g *Game) Active(chatID int64) (*Round, bool) {
	r, ok := g.table.Get(key(chatID))
	if !ok || !r.Active() {
		return nil, false
	}
	return r, true
}

// AttachMessage remembers the board message of a round.
func (g *Game) AttachMessage(chatID int64, roundID uuid.UUID, messageID int) {
	if r, ok := g.table.Lookup(key(chatID), roundID); ok {
		r.messageID.Store(int64(messageID))
	}
}

func (g *Game) validCell(c Cell) bool {
	return c.Row >= 0 && c.Row < g.cfg.Rows && c.Col >= 0 && c.Col < g.cfg.Cols
}

// Guess checks a player's pick. A correct pick wins the round and credits
// the reward; a storage error from crediting is returned alongside the
// winning result. Guesses on a finished or unknown round return
// game.ErrGameEnded, whatever the cell; an off-board cell on a live round
// returns ErrInvalidCell and is not counted.
func (g *Game) Guess(ctx context.Context, chatID int64, roundID uuid.UUID, userID int64, cell Cell) (*GuessResult, error) {
	r, ok := g.table.Lookup(key(chatID), roundID)
	if !ok || r.Status() != game.StatusActive {
		return nil, game.ErrGameEnded
	}
	if !g.validCell(cell) {
		return nil, ErrInvalidCell
	}

	attempts, ok := r.RecordAttempt(userID)
	if !ok {
		return nil, game.ErrGameEnded
	}

	if cell != r.Target {
		return &GuessResult{
			Hint:     Proximity(cell, r.Target),
			Attempts: attempts,
		}, nil
	}

	if !r.Finish(game.StatusWon) {
		return nil, game.ErrGameEnded
	}
	g.table.Remove(key(chatID), r.ID)

	outcome := &Outcome{
		Round:    r,
		Status:   game.StatusWon,
		WinnerID: userID,
		Reward:   g.cfg.Reward,
		Attempts: r.TotalAttempts(),
		Hunters:  len(r.Participants()),
	}

	log.Info().
		Int64("chat_id", chatID).
		Int64("winner_id", userID).
		Int("attempts", outcome.Attempts).
		Msg("Slipper found")

	rec, err := g.rewards.CreditFind(ctx, chatID, userID, g.cfg.Reward)
	outcome.Record = rec
	return &GuessResult{Win: true, Attempts: attempts, Outcome: outcome}, err
}

// Expire ends a round that ran out of time. It returns false when the
// round already finished or was replaced.
func (g *Game) Expire(chatID int64, roundID uuid.UUID) (*Outcome, bool) {
	r, ok := g.table.Lookup(key(chatID), roundID)
	if !ok || !r.Finish(game.StatusExpired) {
		return nil, false
	}
	g.table.Remove(key(chatID), r.ID)

	outcome := &Outcome{
		Round:    r,
		Status:   game.StatusExpired,
		Attempts: r.TotalAttempts(),
		Hunters:  len(r.Participants()),
	}

	log.Info().
		Int64("chat_id", chatID).
		Str("round_id", roundID.String()).
		Msg("Slipper hunt expired")

	g.mu.RLock()
	hook := g.onExpire
	g.mu.RUnlock()
	if hook != nil {
		hook(outcome)
	}
	return outcome, true
}

// Cancel ends a round early.
func (g *Game) Cancel(chatID int64, roundID uuid.UUID, actorID int64) (*Outcome, error) {
	r, ok := g.table.Lookup(key(chatID), roundID)
	if !ok || !r.Finish(game.StatusCancelled) {
		return nil, game.ErrGameEnded
	}
	g.table.Remove(key(chatID), r.ID)

	log.Info().
		Int64("chat_id", chatID).
		Int64("actor_id", actorID).
		Msg("Slipper hunt cancelled")

	return &Outcome{
		Round:    r,
		Status:   game.StatusCancelled,
		Attempts: r.TotalAttempts(),
		Hunters:  len(r.Participants()),
	}, nil
}
