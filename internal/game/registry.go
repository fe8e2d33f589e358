package game

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages game registration and lookup by command.
type Registry struct {
	games map[string]Game
	mu    sync.RWMutex
}

// NewRegistry creates a new game registry.
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]Game),
	}
}

// Register adds a game to the registry.
// If a game with the same command already exists, it will be replaced.
func (r *Registry) Register(g Game) error {
	if g == nil {
		return fmt.Errorf("cannot register nil game")
	}
	if g.Command() == "" {
		return fmt.Errorf("game command cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.Command()] = g
	return nil
}

// List returns all registered games ordered by command.
func (r *Registry) List() []Game {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]Game, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].Command() < games[j].Command()
	})
	return games
}

// Commands returns all registered game commands in order.
func (r *Registry) Commands() []string {
	games := r.List()
	commands := make([]string, 0, len(games))
	for _, g := range games {
		commands = append(commands, g.Command())
	}
	return commands
}

// Count returns the number of registered games.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// LiveSessions sums the active sessions of all games.
func (r *Registry) LiveSessions() int {
	total := 0
	for _, g := range r.List() {
		total += g.Live()
	}
	return total
}
