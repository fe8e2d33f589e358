// Package game defines the timed session state machine shared by the
// mini-games, the live session table and the game registry.
package game

import "errors"

// Kind identifies a mini-game.
type Kind string

// Game kinds.
const (
	KindHunt   Kind = "hunt"
	KindGarden Kind = "garden"
)

// Session errors shared by all games.
var (
	ErrGameAlreadyActive = errors.New("a game of this kind is already active here")
	ErrNoActiveGame      = errors.New("no active game")
	ErrGameEnded         = errors.New("game has already ended")
)

// Game is implemented by every mini-game so the command layer can list
// and describe them.
type Game interface {
	// Name returns the display name (e.g., "Glass Slipper Hunt").
	Name() string

	// Command returns the command that starts the game (e.g., "slipper").
	Command() string

	// Description returns a one-line description for /help.
	Description() string

	// Kind returns the session kind the game runs.
	Kind() Kind

	// Live returns the number of sessions currently active.
	Live() int
}
