// Package moderation implements the warning escalation ladder: warnings
// accumulate per (chat, user) until a threshold signals a suspension.
//
// The engine knows nothing about admin status or the chat gateway. The
// command layer rejects warnings against admins and supplies the function
// that performs the actual ban.
package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"cinderella-bot/internal/model"
	"cinderella-bot/internal/pkg/lock"
)

// DefaultThreshold is the warning count that triggers a suspension.
const DefaultThreshold = 3

// ErrInvalidThreshold is returned for a non-positive threshold.
var ErrInvalidThreshold = errors.New("warning threshold must be positive")

// WarningStore is the subset of the state store used by the engine.
type WarningStore interface {
	Warnings(chatID, userID int64) int
	IncrementWarning(ctx context.Context, chatID, userID int64) (int, error)
	DecrementWarning(ctx context.Context, chatID, userID int64) (int, error)
	ResetWarnings(ctx context.Context, chatID, userID int64) (int, error)
}

// Warning is the outcome of issuing one warning.
type Warning struct {
	Count     int
	Threshold int
	// SuspensionDue is set when Count reached the threshold. The caller
	// suspends the user and clears the counter.
	SuspensionDue bool
	// Suspended is set by Escalate once the suspension went through and
	// the counter was cleared.
	Suspended bool
}

// SuspendFunc bans a user through the gateway.
type SuspendFunc func(ctx context.Context) error

// Remaining returns how many more warnings lead to a suspension.
func (w *Warning) Remaining() int {
	return max(w.Threshold-w.Count, 0)
}

// Engine applies the escalation rules.
type Engine struct {
	store     WarningStore
	threshold int
	locks     *lock.KeyedLock[model.Scope]
}

// NewEngine creates an engine with the given threshold.
func NewEngine(store WarningStore, threshold int) (*Engine, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}
	return &Engine{
		store:     store,
		threshold: threshold,
		locks:     lock.New[model.Scope](),
	}, nil
}

// Threshold returns the configured threshold.
func (e *Engine) Threshold() int {
	return e.threshold
}

// IssueWarning adds one warning. A storage error is returned together with
// the warning, which reflects the in-memory state.
func (e *Engine) IssueWarning(ctx context.Context, chatID, userID int64) (*Warning, error) {
	count, err := e.store.IncrementWarning(ctx, chatID, userID)
	w := &Warning{
		Count:         count,
		Threshold:     e.threshold,
		SuspensionDue: count >= e.threshold,
	}
	return w, err
}

// ClearWarnings removes one warning, or all of them when all is set.
// It returns the remaining count.
func (e *Engine) ClearWarnings(ctx context.Context, chatID, userID int64, all bool) (int, error) {
	if all {
		return e.store.ResetWarnings(ctx, chatID, userID)
	}
	return e.store.DecrementWarning(ctx, chatID, userID)
}

// GetWarnings returns the current count.
func (e *Engine) GetWarnings(chatID, userID int64) int {
	return e.store.Warnings(chatID, userID)
}

// Escalate issues a warning and, when the threshold is reached, calls
// suspend and clears the counter. The whole sequence holds the lock of the
// (chat, user) pair, so concurrent warnings crossing the threshold produce
// exactly one suspension. When suspend fails the counter is left as is and
// the next warning retries the suspension.
func (e *Engine) Escalate(ctx context.Context, chatID, userID int64, suspend SuspendFunc) (*Warning, error) {
	scope := model.UserScope(chatID, userID)
	e.locks.Lock(scope)
	defer e.locks.Unlock(scope)

	w, err := e.IssueWarning(ctx, chatID, userID)
	if err != nil {
		log.Error().Err(err).
			Int64("chat_id", chatID).
			Int64("user_id", userID).
			Msg("Failed to persist warning")
	}
	if !w.SuspensionDue {
		return w, nil
	}

	if err := suspend(ctx); err != nil {
		return w, fmt.Errorf("failed to suspend user: %w", err)
	}
	w.Suspended = true

	if _, err := e.ClearWarnings(ctx, chatID, userID, true); err != nil {
		log.Error().Err(err).
			Int64("chat_id", chatID).
			Int64("user_id", userID).
			Msg("Failed to persist warning reset")
	}
	return w, nil
}
