package handler

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// MessageRetention is how long finished game boards and animations stay
// in the chat before the cleanup job deletes them.
const MessageRetention = 30 * time.Minute

// TrackedMessage represents a message to be deleted later.
type TrackedMessage struct {
	ChatID    int64
	MessageID int
	SentAt    time.Time
}

// Deleter removes a message through the gateway.
type Deleter interface {
	Delete(msg tele.Editable) error
}

// Tracker collects bot messages for delayed deletion.
type Tracker struct {
	retention time.Duration

	mu       sync.Mutex
	messages []TrackedMessage
}

// NewTracker creates a Tracker. A non-positive retention uses
// MessageRetention.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = MessageRetention
	}
	return &Tracker{retention: retention}
}

// Track adds a message to the tracking list.
func (t *Tracker) Track(chatID int64, messageID int, sentAt time.Time) {
	if messageID == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, TrackedMessage{
		ChatID:    chatID,
		MessageID: messageID,
		SentAt:    sentAt,
	})
}

// Clean deletes messages older than the retention and returns how many
// were due. Failed deletions are dropped too; the message is usually gone
// already.
func (t *Tracker) Clean(d Deleter, now time.Time) int {
	t.mu.Lock()
	var due, remaining []TrackedMessage
	for _, msg := range t.messages {
		if now.Sub(msg.SentAt) >= t.retention {
			due = append(due, msg)
		} else {
			remaining = append(remaining, msg)
		}
	}
	t.messages = remaining
	t.mu.Unlock()

	for _, msg := range due {
		err := d.Delete(&tele.Message{
			ID:   msg.MessageID,
			Chat: &tele.Chat{ID: msg.ChatID},
		})
		if err != nil {
			log.Debug().Err(err).Int("msg_id", msg.MessageID).Msg("Failed to delete old message")
		}
	}
	return len(due)
}

// Len returns the number of pending messages.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
