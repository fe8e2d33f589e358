package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cinderella-bot/internal/config"
)

// PrivateAccess tracks users who have used the bot in a whitelisted group.
// They may talk to the bot in private chat afterwards.
type PrivateAccess struct {
	mu    sync.RWMutex
	users map[int64]struct{}
}

// NewPrivateAccess creates an empty PrivateAccess.
func NewPrivateAccess() *PrivateAccess {
	return &PrivateAccess{users: make(map[int64]struct{})}
}

// Allow marks a user as allowed to use private chat.
func (p *PrivateAccess) Allow(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = struct{}{}
}

// Allowed checks if a user is allowed to use private chat.
func (p *PrivateAccess) Allowed(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.users[userID]
	return ok
}

// WhitelistMiddleware creates a middleware that checks if the chat is whitelisted.
func WhitelistMiddleware(cfg *config.Config, access *PrivateAccess) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()

			if chat == nil || sender == nil {
				return nil
			}

			if chat.Type == tele.ChatPrivate {
				if access.Allowed(sender.ID) {
					return next(c)
				}

				// If whitelist is empty, allow all private chats
				if len(cfg.Whitelist.Chats) == 0 {
					return next(c)
				}

				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Ignoring private chat from user not in whitelist cache")
				return nil
			}

			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring update from non-whitelisted chat")
				return nil
			}

			access.Allow(sender.ID)

			return next(c)
		}
	}
}

// AdminChecker decides whether a user administers a chat.
type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID, userID int64) bool
}

// AdminMiddleware creates a middleware that checks if the user belongs to
// the royal court of the chat.
func AdminMiddleware(checker AdminChecker) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()
			if sender == nil || chat == nil {
				return nil
			}

			if !checker.IsAdmin(context.Background(), chat.ID, sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Int64("chat_id", chat.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("🔒 Only the royal court may use this command!")
			}

			return next(c)
		}
	}
}

// UserRecorder remembers users seen in chats.
type UserRecorder interface {
	Remember(u *tele.User)
}

// MessageCounter counts group messages.
type MessageCounter interface {
	CountMessage(ctx context.Context, chatID int64) error
}

// ActivityMiddleware remembers every sender and counts group messages.
func ActivityMiddleware(users UserRecorder, counter MessageCounter) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			users.Remember(c.Sender())

			msg := c.Message()
			if msg == nil || c.Callback() != nil {
				return next(c)
			}
			if msg.ReplyTo != nil {
				users.Remember(msg.ReplyTo.Sender)
			}

			chat := c.Chat()
			if chat != nil && (chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup) {
				if err := counter.CountMessage(context.Background(), chat.ID); err != nil {
					log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to count message")
				}
			}

			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received update")

			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Something went wrong in the royal kitchen. Please try again later.")
				}
			}()
			return next(c)
		}
	}
}
