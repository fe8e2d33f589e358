package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cinderella-bot/internal/moderation"
	"cinderella-bot/internal/service"
	"cinderella-bot/internal/store"
)

// ModerationHandler handles the royal court commands.
type ModerationHandler struct {
	engine       *moderation.Engine
	store        *store.Store
	profiles     *service.ProfileService
	policy       *AdminPolicy
	dir          *Directory
	muteDuration time.Duration
}

// NewModerationHandler creates a new ModerationHandler.
func NewModerationHandler(
	engine *moderation.Engine,
	st *store.Store,
	profiles *service.ProfileService,
	policy *AdminPolicy,
	dir *Directory,
	muteDuration time.Duration,
) *ModerationHandler {
	return &ModerationHandler{
		engine:       engine,
		store:        st,
		profiles:     profiles,
		policy:       policy,
		dir:          dir,
		muteDuration: muteDuration,
	}
}

// target resolves the user a court command is aimed at and refuses
// members of the court. ok is false when a reply was already sent.
func (h *ModerationHandler) target(ctx context.Context, c tele.Context, verb string, protectCourt bool) (*tele.User, []string, bool) {
	target, rest := ResolveTarget(c.Message(), c.Args(), h.dir)
	if target == nil {
		_ = c.Reply(fmt.Sprintf("🧙‍♀️ You must mention or reply to someone to %s them!", verb))
		return nil, nil, false
	}

	if protectCourt && h.policy.IsAdmin(ctx, c.Chat().ID, target.ID) {
		_ = c.Reply(fmt.Sprintf("👑 The royal court cannot be %s!", pastTense(verb)))
		return nil, nil, false
	}
	return target, rest, true
}

func pastTense(verb string) string {
	switch verb {
	case "curse":
		return "cursed"
	case "banish":
		return "banished"
	case "silence":
		return "silenced"
	default:
		return verb + "ed"
	}
}

// HandleCurse handles the /curse command.
// Format: /curse (as a reply) or /curse @username
func (h *ModerationHandler) HandleCurse(c tele.Context) error {
	ctx := context.Background()
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	target, _, ok := h.target(ctx, c, "curse", true)
	if !ok {
		return nil
	}

	chat := c.Chat()
	bot := c.Bot()
	w, err := h.engine.Escalate(ctx, chat.ID, target.ID, func(context.Context) error {
		return bot.Ban(chat, &tele.ChatMember{User: target, RestrictedUntil: tele.Forever()})
	})
	if err != nil {
		log.Error().Err(err).
			Int64("chat_id", chat.ID).
			Int64("target_id", target.ID).
			Int("warnings", w.Count).
			Msg("Failed to banish cursed user")
		return c.Reply(refusalReply(err, "banish"))
	}

	log.Info().
		Int64("admin_id", c.Sender().ID).
		Int64("chat_id", chat.ID).
		Int64("target_id", target.ID).
		Int("warnings", w.Count).
		Bool("suspended", w.Suspended).
		Msg("Curse cast")

	if w.Suspended {
		return c.Reply(fmt.Sprintf("⚡ The clock has struck midnight for %s! "+
			"After %d curses, they've been banished from the kingdom!",
			displayName(target), w.Count))
	}
	return c.Reply(fmt.Sprintf("⚠️ %s has been cursed! Curse count: %d/%d\n"+
		"Royal mercy can be granted with /pardon",
		displayName(target), w.Count, w.Threshold))
}

// HandleBanish handles the /banish command.
func (h *ModerationHandler) HandleBanish(c tele.Context) error {
	ctx := context.Background()
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	target, _, ok := h.target(ctx, c, "banish", true)
	if !ok {
		return nil
	}

	chat := c.Chat()
	err := c.Bot().Ban(chat, &tele.ChatMember{User: target, RestrictedUntil: tele.Forever()})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Int64("target_id", target.ID).Msg("Failed to ban user")
		return c.Reply(refusalReply(err, "banish"))
	}

	log.Info().
		Int64("admin_id", c.Sender().ID).
		Int64("chat_id", chat.ID).
		Int64("target_id", target.ID).
		Msg("User banished")

	return c.Reply(fmt.Sprintf("🔮 %s has been banished from the kingdom! "+
		"Their carriage has turned back into a pumpkin.", displayName(target)))
}

// HandleSilence handles the /silence command.
// Format: /silence [@username] [duration], duration like 30m, 2h, 1d
func (h *ModerationHandler) HandleSilence(c tele.Context) error {
	ctx := context.Background()
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	target, rest, ok := h.target(ctx, c, "silence", true)
	if !ok {
		return nil
	}

	duration := h.muteDuration
	if len(rest) > 0 {
		duration = moderation.ParseMuteDuration(rest[0], h.muteDuration)
	}

	chat := c.Chat()
	err := c.Bot().Restrict(chat, &tele.ChatMember{
		User:            target,
		Rights:          tele.NoRights(),
		RestrictedUntil: time.Now().Add(duration).Unix(),
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Int64("target_id", target.ID).Msg("Failed to mute user")
		return c.Reply(refusalReply(err, "silence"))
	}

	log.Info().
		Int64("admin_id", c.Sender().ID).
		Int64("chat_id", chat.ID).
		Int64("target_id", target.ID).
		Dur("duration", duration).
		Msg("User silenced")

	return c.Reply(fmt.Sprintf("🤫 %s has been silenced for %s!\n"+
		"Their voice will return at the stroke of midnight.",
		displayName(target), moderation.HumanDuration(duration)))
}

// HandlePardon handles the /pardon command. It lifts a ban, a mute and
// every curse of the target.
func (h *ModerationHandler) HandlePardon(c tele.Context) error {
	ctx := context.Background()
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	target, _, ok := h.target(ctx, c, "pardon", false)
	if !ok {
		return nil
	}

	chat := c.Chat()
	if _, err := h.engine.ClearWarnings(ctx, chat.ID, target.ID, true); err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Int64("target_id", target.ID).Msg("Failed to persist pardon")
	}

	bot := c.Bot()
	// Unban with onlyIfBanned so members that were never banned stay in.
	unbanErr := bot.Unban(chat, target, true)
	restrictErr := bot.Restrict(chat, &tele.ChatMember{
		User:   target,
		Rights: tele.NoRestrictions(),
	})
	if err := errors.Join(unbanErr, restrictErr); err != nil {
		log.Warn().Err(err).Int64("chat_id", chat.ID).Int64("target_id", target.ID).Msg("Pardon partially failed")
		return c.Reply(fmt.Sprintf("✨ Attempted to pardon %s.\n"+
			"Their curses have been lifted. If they were banned, they can now return to the kingdom.",
			displayName(target)))
	}

	log.Info().
		Int64("admin_id", c.Sender().ID).
		Int64("chat_id", chat.ID).
		Int64("target_id", target.ID).
		Msg("User pardoned")

	return c.Reply(fmt.Sprintf("✨ The fairy godmother has granted mercy to %s!\n"+
		"Their curses have been lifted and they may return to the kingdom.", displayName(target)))
}

// HandleWarnings handles the /warnings command. Without a target it shows
// the sender's own curses.
func (h *ModerationHandler) HandleWarnings(c tele.Context) error {
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	target, _ := ResolveTarget(c.Message(), c.Args(), h.dir)
	if target == nil {
		target = c.Sender()
	}

	count := h.engine.GetWarnings(c.Chat().ID, target.ID)
	if count == 0 {
		return c.Reply(fmt.Sprintf("😇 %s is free of curses.", displayName(target)))
	}
	return c.Reply(fmt.Sprintf("⚠️ %s carries %d/%d curses.",
		displayName(target), count, h.engine.Threshold()))
}

// HandleRules handles the /royal_rules command. Without text it shows the
// rules; with text an admin proclaims new ones.
func (h *ModerationHandler) HandleRules(c tele.Context) error {
	ctx := context.Background()
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}
	chat := c.Chat()

	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		rules, ok := h.store.Rules(chat.ID)
		if !ok {
			return c.Reply("📜 No royal decrees have been proclaimed yet.")
		}
		return c.Reply("📜 Royal Decree\n\n" + rules)
	}

	if !h.policy.IsAdmin(ctx, chat.ID, c.Sender().ID) {
		return c.Reply("🔒 Only the royal court may set kingdom rules!")
	}

	reply := "📜 New Royal Decree Proclaimed!\n\n" + text +
		"\n\nAll kingdom subjects must obey these rules or face the royal punishment!"
	if err := h.store.SetRules(ctx, chat.ID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to persist rules")
		reply += "\n\n" + msgStorageIssue
	}

	log.Info().Int64("admin_id", c.Sender().ID).Int64("chat_id", chat.ID).Msg("Rules proclaimed")

	return c.Reply(reply)
}

// HandleSettings handles the /settings command.
// Format: /settings <welcome|games> <on|off>
func (h *ModerationHandler) HandleSettings(c tele.Context) error {
	ctx := context.Background()
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}
	chat := c.Chat()

	args := c.Args()
	if len(args) == 0 {
		s := h.profiles.Group(chat.ID).Settings
		return c.Reply(fmt.Sprintf("⚙️ Kingdom settings\n\n"+
			"👋 Welcome messages: %s\n"+
			"🎲 Games: %s\n\n"+
			"Usage: /settings <welcome|games> <on|off>",
			onOff(s.WelcomeEnabled), onOff(s.GamesEnabled)))
	}

	if len(args) != 2 {
		return c.Reply("❌ Usage: /settings <welcome|games> <on|off>")
	}
	enabled, ok := parseSwitch(args[1])
	if !ok {
		return c.Reply("❌ Usage: /settings <welcome|games> <on|off>")
	}

	name := strings.ToLower(args[0])
	settings, err := h.profiles.SetGroupSetting(ctx, chat.ID, name, enabled)
	if errors.Is(err, service.ErrUnknownSetting) {
		return c.Reply("❌ Unknown setting. Choose welcome or games.")
	}
	note := ""
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to persist group settings")
		note = "\n\n" + msgStorageIssue
	}

	log.Info().
		Int64("admin_id", c.Sender().ID).
		Int64("chat_id", chat.ID).
		Str("setting", name).
		Bool("enabled", enabled).
		Msg("Group setting changed")

	return c.Reply(fmt.Sprintf("✅ Kingdom settings updated\n\n"+
		"👋 Welcome messages: %s\n"+
		"🎲 Games: %s%s",
		onOff(settings.WelcomeEnabled), onOff(settings.GamesEnabled), note))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func parseSwitch(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, true
	case "off", "false", "no", "0", "disable", "disabled":
		return false, true
	}
	return false, false
}
