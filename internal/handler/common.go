// Package handler provides Telegram bot command handlers.
package handler

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v3"
)

// Replies shared by several handlers.
const (
	msgGroupOnly    = "🏰 This magic only works inside a kingdom (group chat)."
	msgTryLater     = "🧙‍♀️ The royal scribe is having trouble. Please try again later."
	msgGamesOff     = "🎭 The royal games are closed in this kingdom. An admin can open them with /settings games on"
	msgStorageIssue = "⚠️ The royal archive could not be updated, but the magic still happened."
)

// displayName returns the best human name of a user.
func displayName(u *tele.User) string {
	if u == nil {
		return "someone"
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

// inGroup reports whether the update comes from a group chat.
func inGroup(c tele.Context) bool {
	chat := c.Chat()
	return chat != nil && (chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup)
}

// isPermissionError reports whether the Bot API refused an action because
// the bot lacks admin rights.
func isPermissionError(err error) bool {
	return errorContains(err,
		"not enough rights",
		"chat_admin_required",
		"need administrator rights",
		"have no rights")
}

// isTargetAdminError reports whether the Bot API refused an action because
// the target is an admin, the owner or the bot itself.
func isTargetAdminError(err error) bool {
	return errorContains(err,
		"user is an administrator",
		"can't remove chat owner",
		"can't restrict self",
		"can't restrict chat owner")
}

func errorContains(err error, fragments ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// refusalReply picks the reply for a failed ban or mute.
func refusalReply(err error, verb string) string {
	switch {
	case isTargetAdminError(err):
		return fmt.Sprintf("👑 Members of the royal court cannot be %s!", pastTense(verb))
	case isPermissionError(err):
		return fmt.Sprintf("❌ I don't have the royal authority to %s members!", verb)
	default:
		return msgTryLater
	}
}

// Directory remembers users the bot has seen so @username arguments can be
// resolved. The Bot API has no lookup by username for private users.
type Directory struct {
	mu     sync.RWMutex
	byName map[string]tele.User
	byID   map[int64]tele.User
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]tele.User),
		byID:   make(map[int64]tele.User),
	}
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// Remember records a user under its id and username.
func (d *Directory) Remember(u *tele.User) {
	if u == nil || u.IsBot {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[u.ID] = *u
	if u.Username != "" {
		d.byName[normalizeUsername(u.Username)] = *u
	}
}

// Name returns the display name of a known user, or a placeholder.
func (d *Directory) Name(userID int64) string {
	d.mu.RLock()
	u, ok := d.byID[userID]
	d.mu.RUnlock()
	if !ok {
		return "Subject #" + strconv.FormatInt(userID, 10)
	}
	return displayName(&u)
}

// Lookup finds a user by username, with or without the leading @.
func (d *Directory) Lookup(username string) (*tele.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byName[normalizeUsername(username)]
	if !ok {
		return nil, false
	}
	return &u, true
}

// Len returns the number of known users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// ResolveTarget finds the user a command is aimed at: the author of the
// replied-to message, a text mention, or an @username / numeric id
// argument. It returns the arguments left after the target.
func ResolveTarget(msg *tele.Message, args []string, dir *Directory) (*tele.User, []string) {
	if msg == nil {
		return nil, args
	}
	if msg.ReplyTo != nil && msg.ReplyTo.Sender != nil {
		return msg.ReplyTo.Sender, args
	}

	for _, e := range msg.Entities {
		if e.Type == tele.EntityTMention && e.User != nil {
			return e.User, dropFirst(args)
		}
	}

	if len(args) == 0 {
		return nil, args
	}

	arg := args[0]
	if strings.HasPrefix(arg, "@") {
		if dir == nil {
			return nil, args
		}
		if u, ok := dir.Lookup(arg); ok {
			return u, args[1:]
		}
		return nil, args
	}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
		return &tele.User{ID: id}, args[1:]
	}
	return nil, args
}

func dropFirst(args []string) []string {
	if len(args) == 0 {
		return args
	}
	return args[1:]
}
