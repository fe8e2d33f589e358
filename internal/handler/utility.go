package handler

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cinderella-bot/internal/game"
	"cinderella-bot/internal/service"
)

// MiceFrameDelay is the pause between two frames of the /mice animation.
const MiceFrameDelay = 500 * time.Millisecond

// MiceFrames is the /mice cleaning animation.
var MiceFrames = []string{
	"🐭              ",
	"🐭🐭            ",
	"🐭🐭🐭          ",
	"  🐭🐭🐭        ",
	"    🐭🐭🐭      ",
	"      🐭🐭🐭    ",
	"        🐭🐭🐭  ",
	"          🐭🐭🐭",
	"            🐭🐭",
	"              🐭",
	"               🧹",
	"              🧹 ",
	"             🧹  ",
	"            🧹   ",
	"           🧹    ",
	"          🧹     ",
	"         🧹      ",
	"        🧹       ",
	"       🧹        ",
	"      🧹         ",
	"     🧹          ",
	"    🧹           ",
	"   🧹            ",
	"  🧹             ",
	" 🧹              ",
	"🧹               ",
	"✨✨✨✨✨✨✨✨✨✨✨",
}

var royalRoasts = []string{
	"Even the ugliest stepsister has more charm than %s.",
	"If %s were a shoe, they'd be the one that doesn't fit.",
	"The royal guards called - they want %s to stop scaring the castle mice.",
	"Not even the Fairy Godmother's strongest magic could make %s royal material.",
	"%s's fashion sense is so outdated, it belongs in 'once upon a time'.",
	"If midnight struck and %s turned into a pumpkin, it would be an improvement.",
	"%s dances like they have two left glass slippers.",
	"Even Lucifer the cat wouldn't bother chasing %s around the castle.",
	"The magic mirror said %s is the fairest of all... at being unfair.",
	"If %s were invited to the ball, the Prince would flee at midnight.",
	"%s has the grace of a pumpkin rolling down the palace steps.",
	"Bibbidi-Bobbidi-Boo! I just turned %s into what they truly are - a royal fool!",
	"Not even the fairy godmother could transform %s into someone charming.",
	"%s is about as useful as a glass slipper in a foot race.",
	"If brains were pumpkins, %s wouldn't have enough seeds to make a pie.",
}

var inviteTemplates = []string{
	"👑 ROYAL INVITATION 👑\n\n" +
		"By decree of the Royal Court,\n" +
		"You are cordially invited to join:\n\n" +
		"🏰 %s 🏰\n\n" +
		"The kingdom awaits your presence!\n" +
		"🔮 %s",
	"✨ Hear ye, hear ye! ✨\n\n" +
		"The Royal Family of\n" +
		"🏰 %s 🏰\n\n" +
		"Requests your presence at the grand ball.\n" +
		"Your glass carriage awaits:\n" +
		"👠 %s",
	"🧚‍♀️ Bibbidi-Bobbidi-Boo! 🧚‍♀️\n\n" +
		"The Fairy Godmother has prepared\n" +
		"a magical evening for you at:\n\n" +
		"✨ %s ✨\n\n" +
		"Don't be late! Remember, the spell breaks at midnight:\n" +
		"🎃 %s",
}

// UtilityHandler handles greetings, status and entertainment commands.
type UtilityHandler struct {
	ctx       context.Context
	botName   string
	startedAt time.Time
	registry  *game.Registry
	profiles  *service.ProfileService
	ranking   *service.RankingService
	dir       *Directory
	tracker   *Tracker
}

// NewUtilityHandler creates a new UtilityHandler. ctx bounds the cosmetic
// animations and is cancelled on shutdown.
func NewUtilityHandler(
	ctx context.Context,
	botName string,
	registry *game.Registry,
	profiles *service.ProfileService,
	ranking *service.RankingService,
	dir *Directory,
	tracker *Tracker,
) *UtilityHandler {
	return &UtilityHandler{
		ctx:       ctx,
		botName:   botName,
		startedAt: time.Now(),
		registry:  registry,
		profiles:  profiles,
		ranking:   ranking,
		dir:       dir,
		tracker:   tracker,
	}
}

// HandleStart handles the /start command.
func (h *UtilityHandler) HandleStart(c tele.Context) error {
	if len(c.Args()) > 0 && c.Args()[0] == "help" {
		return h.HandleHelp(c)
	}

	return c.Reply(fmt.Sprintf("👑 Welcome to %s! 👑\n\n"+
		"I'm your magical assistant, ready to transform your Telegram group "+
		"into a royal kingdom!\n\n"+
		"My magical powers include:\n"+
		"• 👑 Royal group management\n"+
		"• 🔮 Magical games and fortunes\n"+
		"• 🎭 Royal entertainment\n\n"+
		"Add me to your group to experience the magic!\n"+
		"Use /help to see all my commands.", h.botName))
}

// HandleHelp handles the /help command.
func (h *UtilityHandler) HandleHelp(c tele.Context) error {
	return c.Reply(HelpText(h.botName, h.registry))
}

// HelpText lists every command, with the games taken from the registry.
func HelpText(botName string, registry *game.Registry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👑 Welcome to %s!\n\n", botName))
	sb.WriteString("Here are all the magical commands you can use:\n\n")

	sb.WriteString("👑 Group Management\n")
	sb.WriteString("• /curse [@user] - Warn a user (too many curses = ban)\n")
	sb.WriteString("• /banish [@user] - Ban user from kingdom\n")
	sb.WriteString("• /silence [@user] [30m|2h|1d] - Mute user temporarily\n")
	sb.WriteString("• /pardon [@user] - Unban/unmute user and lift curses\n")
	sb.WriteString("• /warnings [@user] - Count curses\n")
	sb.WriteString("• /royal_rules [text] - Set or view group rules\n")
	sb.WriteString("• /settings <welcome|games> <on|off> - Kingdom settings\n\n")

	sb.WriteString("🔮 Enchanted Games\n")
	for _, g := range registry.List() {
		sb.WriteString(fmt.Sprintf("• /%s - %s\n", g.Command(), g.Description()))
	}
	sb.WriteString("• /fortune - Get fairy godmother's prophecy\n")
	sb.WriteString("• /profile [@user] - Show a royal record\n")
	sb.WriteString("• /top - Royal treasury leaderboard\n\n")

	sb.WriteString("🎭 Royal Entertainment\n")
	sb.WriteString("• /roast [@user] - Roast a user with royal sass\n")
	sb.WriteString("• /mice - Send mouse helpers to clean chat\n")
	sb.WriteString("• /invite - Share magical invite link\n")
	sb.WriteString("• /mood <text> - Read the mood of a message\n")
	sb.WriteString("• /imagine <prompt> - Paint a magical picture\n")
	sb.WriteString("• /speak <text> - Hear the Fairy Godmother speak\n\n")

	sb.WriteString("⚙️ Utility Commands\n")
	sb.WriteString("• /status - Check bot health/uptime\n")
	sb.WriteString("• /help - Show this help message\n\n")

	sb.WriteString("✨ Note: Admin commands (👑) require proper permissions.")
	return sb.String()
}

// HandleStatus handles the /status command.
func (h *UtilityHandler) HandleStatus(c tele.Context) error {
	stats := h.ranking.Stats()
	uptime := time.Since(h.startedAt).Truncate(time.Second)

	return c.Reply(fmt.Sprintf("🏰 %s Status\n\n"+
		"Uptime: %s\n"+
		"Go Version: %s\n"+
		"Goroutines: %d\n\n"+
		"Total Users: %d\n"+
		"Total Groups: %d\n"+
		"Live Games: %d\n\n"+
		"✨ The magic is running smoothly!",
		h.botName, uptime, runtime.Version(), runtime.NumGoroutine(),
		stats.Users, stats.Groups, h.registry.LiveSessions()))
}

// HandleInvite handles the /invite command.
func (h *UtilityHandler) HandleInvite(c tele.Context) error {
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}
	chat := c.Chat()

	link := ""
	if chat.Username != "" {
		link = "https://t.me/" + chat.Username
	} else {
		var err error
		link, err = c.Bot().InviteLink(chat)
		if err != nil {
			log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Could not create invite link")
			return c.Reply("🔮 The Fairy Godmother cannot create a magical invite! " +
				"Please ensure I have permission to generate invite links.")
		}
	}

	return c.Reply(RoyalInvite(chat.Title, link))
}

// RoyalInvite renders one of the invitation templates.
func RoyalInvite(groupName, link string) string {
	tmpl := inviteTemplates[rand.Intn(len(inviteTemplates))]
	return fmt.Sprintf(tmpl, groupName, link)
}

// HandleRoast handles the /roast command. Without a target the sender is
// roasted.
func (h *UtilityHandler) HandleRoast(c tele.Context) error {
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	target, _ := ResolveTarget(c.Message(), c.Args(), h.dir)
	if target == nil && len(c.Args()) > 0 {
		return c.Reply("🧙‍♀️ Who shall I roast? Please reply to someone or mention them!")
	}
	if target == nil {
		target = c.Sender()
	}

	return c.Reply(fmt.Sprintf("👑 *Ahem* Royal decree states: %s 🔥", Roast(displayName(target))))
}

// Roast picks one royal roast for name.
func Roast(name string) string {
	return fmt.Sprintf(royalRoasts[rand.Intn(len(royalRoasts))], name)
}

// HandleMice handles the /mice command.
func (h *UtilityHandler) HandleMice(c tele.Context) error {
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	msg, err := c.Bot().Reply(c.Message(), "🐭 The royal mice are coming to clean the chat!")
	if err != nil {
		return err
	}

	bot := c.Bot()
	edit := func(text string) error {
		_, err := bot.Edit(msg, text)
		return err
	}

	// The animation takes a while; run it off the update goroutine.
	go func() {
		if err := Animate(h.ctx, MiceFrames, MiceFrameDelay, edit); err != nil {
			log.Debug().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Mice animation stopped")
		}
		if err := edit("✨ The royal mice have finished cleaning!\n" +
			"The chat is now sparkling like the palace ballroom! ✨🐭"); err != nil {
			log.Debug().Err(err).Msg("Failed to show final mice frame")
		}
		h.tracker.Track(msg.Chat.ID, msg.ID, time.Now())
	}()
	return nil
}

// Animate shows frames one after another through edit. It stops at the
// first failed edit or when ctx is done.
func Animate(ctx context.Context, frames []string, delay time.Duration, edit func(string) error) error {
	t := time.NewTimer(0)
	defer t.Stop()
	<-t.C

	for i, frame := range frames {
		if err := edit("🧚‍♀️ Bibbidi-Bobbidi-Boo!\n\n" + frame); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if i == len(frames)-1 {
			break
		}
		t.Reset(delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// HandleUserJoined greets new members, or announces the bot itself.
func (h *UtilityHandler) HandleUserJoined(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.UserJoined == nil {
		return nil
	}
	user := msg.UserJoined
	chat := c.Chat()

	if me := c.Bot().Me; me != nil && user.ID == me.ID {
		return c.Send(fmt.Sprintf("👑 Royal Announcement! 👑\n\n"+
			"%s has arrived at the ball!\n\n"+
			"I am here to manage your kingdom with magical powers:\n"+
			"• 👑 Royal group management\n"+
			"• 🔮 Enchanted games\n"+
			"• 🎭 Royal entertainment\n\n"+
			"Please make me an admin so my magic can work properly!\n"+
			"Use /help to see all my magical commands.", h.botName))
	}

	h.dir.Remember(user)
	if !h.profiles.Group(chat.ID).Settings.WelcomeEnabled {
		return nil
	}

	return c.Send(fmt.Sprintf("👑 Welcome to the royal ball, %s! 👑\n\n"+
		"The kingdom of %s welcomes you with open arms!\n"+
		"Remember to follow the royal rules and enjoy your stay.\n\n"+
		"Use /help to see all the magical commands available!",
		displayName(user), chat.Title))
}

// HandleUserLeft says goodbye to departing members.
func (h *UtilityHandler) HandleUserLeft(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.UserLeft == nil {
		return nil
	}
	user := msg.UserLeft

	if me := c.Bot().Me; me != nil && user.ID == me.ID {
		return nil
	}
	if !h.profiles.Group(c.Chat().ID).Settings.WelcomeEnabled {
		return nil
	}

	return c.Send(fmt.Sprintf("🎭 %s has left the ball before midnight!\n"+
		"Perhaps they lost their glass slipper somewhere else...", displayName(user)))
}
