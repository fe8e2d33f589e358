package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cinderella-bot/internal/game"
	"cinderella-bot/internal/game/garden"
	"cinderella-bot/internal/game/hunt"
	"cinderella-bot/internal/moderation"
	"cinderella-bot/internal/service"
	"cinderella-bot/internal/store"
)

// GameHandler handles the mini-games and the profile commands.
type GameHandler struct {
	hunt     *hunt.Game
	garden   *garden.Game
	profiles *service.ProfileService
	ranking  *service.RankingService
	fortune  *service.FortuneService
	policy   *AdminPolicy
	dir      *Directory
	tracker  *Tracker
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(
	huntGame *hunt.Game,
	gardenGame *garden.Game,
	profiles *service.ProfileService,
	ranking *service.RankingService,
	fortune *service.FortuneService,
	policy *AdminPolicy,
	dir *Directory,
	tracker *Tracker,
) *GameHandler {
	return &GameHandler{
		hunt:     huntGame,
		garden:   gardenGame,
		profiles: profiles,
		ranking:  ranking,
		fortune:  fortune,
		policy:   policy,
		dir:      dir,
		tracker:  tracker,
	}
}

// gamesAllowed replies and returns false when games are off in the chat.
func (h *GameHandler) gamesAllowed(c tele.Context) bool {
	if !inGroup(c) {
		_ = c.Reply(msgGroupOnly)
		return false
	}
	if !h.profiles.Group(c.Chat().ID).Settings.GamesEnabled {
		_ = c.Reply(msgGamesOff)
		return false
	}
	return true
}

// HandleSlipper handles the /slipper command.
func (h *GameHandler) HandleSlipper(c tele.Context) error {
	ctx := context.Background()
	if !h.gamesAllowed(c) {
		return nil
	}
	chat := c.Chat()
	sender := c.Sender()

	r, err := h.hunt.Start(ctx, chat.ID, sender.ID)
	if errors.Is(err, game.ErrGameAlreadyActive) {
		if active, ok := h.hunt.Active(chat.ID); ok {
			left := int(active.Remaining(time.Now()).Round(time.Second).Seconds())
			return c.Reply(fmt.Sprintf("🔍 A royal hunt for the glass slipper is already in progress!\n"+
				"Time remaining: %d seconds", left))
		}
		return c.Reply("🔍 A royal hunt for the glass slipper is already in progress!")
	}
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to start slipper hunt")
		return c.Reply(msgTryLater)
	}

	cfg := h.hunt.Config()
	board, err := c.Bot().Send(chat, hunt.FormatBoardMessage(cfg), hunt.BuildBoard(r, cfg.Rows, cfg.Cols))
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to send slipper board")
		if _, cerr := h.hunt.Cancel(chat.ID, r.ID, sender.ID); cerr != nil {
			log.Debug().Err(cerr).Msg("Hunt already over")
		}
		return nil
	}
	h.hunt.AttachMessage(chat.ID, r.ID, board.ID)
	return nil
}

// HuntExpiredNotifier returns the hook that reveals the slipper when a hunt
// runs out of time. It edits the board in place and falls back to a new
// message.
func (h *GameHandler) HuntExpiredNotifier(bot *tele.Bot) func(*hunt.Outcome) {
	return func(o *hunt.Outcome) {
		chat := &tele.Chat{ID: o.Round.ChatID}
		text := hunt.FormatExpiredMessage(o)

		if id := o.Round.MessageID(); id != 0 {
			board := &tele.Message{ID: id, Chat: chat}
			_, err := bot.Edit(board, text)
			if err == nil {
				h.tracker.Track(chat.ID, id, time.Now())
				return
			}
			log.Debug().Err(err).Int64("chat_id", chat.ID).Msg("Failed to edit expired board")
		}

		msg, err := bot.Send(chat, text)
		if err != nil {
			log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to announce expired hunt")
			return
		}
		h.tracker.Track(chat.ID, msg.ID, time.Now())
	}
}

// HandleHuntCallback handles presses on the hunt board.
func (h *GameHandler) HandleHuntCallback(c tele.Context, data string) error {
	ctx := context.Background()
	chat := c.Chat()
	sender := c.Sender()
	if chat == nil || sender == nil {
		return c.Respond()
	}

	cb, err := hunt.DecodeCallback(data)
	if err != nil {
		log.Debug().Err(err).Str("data", data).Msg("Bad hunt callback")
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}

	switch cb.Action {
	case hunt.ActionGuess:
		return h.guess(ctx, c, cb)
	case hunt.ActionEnd:
		return h.endHunt(ctx, c, cb)
	default:
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}
}

func (h *GameHandler) guess(ctx context.Context, c tele.Context, cb *hunt.Callback) error {
	chat := c.Chat()
	sender := c.Sender()
	h.dir.Remember(sender)

	res, err := h.hunt.Guess(ctx, chat.ID, cb.RoundID, sender.ID, cb.Cell)
	switch {
	case errors.Is(err, game.ErrGameEnded):
		return c.Respond(&tele.CallbackResponse{
			Text:      "This glass slipper hunt has already ended!",
			ShowAlert: true,
		})
	case errors.Is(err, hunt.ErrInvalidCell):
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	case err != nil && (res == nil || !res.Win):
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to process guess")
		return c.Respond(&tele.CallbackResponse{Text: msgTryLater, ShowAlert: true})
	case err != nil:
		log.Error().Err(err).Int64("chat_id", chat.ID).Int64("winner_id", sender.ID).Msg("Failed to persist slipper reward")
	}

	if !res.Win {
		return c.Respond(&tele.CallbackResponse{
			Text:      hunt.HintMessage(res.Hint),
			ShowAlert: true,
		})
	}

	if err := c.Respond(&tele.CallbackResponse{
		Text:      "👠 You found the glass slipper! It's a perfect fit!",
		ShowAlert: true,
	}); err != nil {
		log.Debug().Err(err).Msg("Failed to answer winning callback")
	}

	text := hunt.FormatWinMessage(displayName(sender), res.Outcome)
	if err := c.Edit(text); err != nil {
		log.Debug().Err(err).Int64("chat_id", chat.ID).Msg("Failed to edit won board")
		return c.Send(text)
	}
	h.tracker.Track(chat.ID, res.Outcome.Round.MessageID(), time.Now())
	return nil
}

// endHunt lets the starter or a court member stop the hunt early.
func (h *GameHandler) endHunt(ctx context.Context, c tele.Context, cb *hunt.Callback) error {
	chat := c.Chat()
	sender := c.Sender()

	if r, ok := h.hunt.Active(chat.ID); ok && r.ID == cb.RoundID &&
		r.StarterID != sender.ID && !h.policy.IsAdmin(ctx, chat.ID, sender.ID) {
		return c.Respond(&tele.CallbackResponse{
			Text:      "🔒 Only the hunt's herald or the royal court may end it!",
			ShowAlert: true,
		})
	}

	o, err := h.hunt.Cancel(chat.ID, cb.RoundID, sender.ID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{
			Text:      "This glass slipper hunt has already ended!",
			ShowAlert: true,
		})
	}

	if err := c.Edit(hunt.FormatCancelledMessage(o)); err != nil {
		log.Debug().Err(err).Int64("chat_id", chat.ID).Msg("Failed to edit cancelled board")
	} else {
		h.tracker.Track(chat.ID, o.Round.MessageID(), time.Now())
	}
	return c.Respond(&tele.CallbackResponse{
		Text:      "You've ended the glass slipper hunt early.",
		ShowAlert: true,
	})
}

// HandlePumpkin handles the /pumpkin command: plant, check or harvest.
func (h *GameHandler) HandlePumpkin(c tele.Context) error {
	ctx := context.Background()
	if !h.gamesAllowed(c) {
		return nil
	}
	chat := c.Chat()
	sender := c.Sender()

	growth, err := h.garden.Query(chat.ID, sender.ID)
	if errors.Is(err, game.ErrNoActiveGame) {
		return h.plant(ctx, c)
	}
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to query pumpkin")
		return c.Reply(msgTryLater)
	}

	if !growth.Ready {
		return c.Reply(FormatGrowing(growth, h.garden.Config().MaxSize))
	}

	harvest, err := h.garden.Harvest(ctx, chat.ID, sender.ID)
	switch {
	case errors.Is(err, garden.ErrNotReady):
		return c.Reply(FormatGrowing(growth, h.garden.Config().MaxSize))
	case errors.Is(err, game.ErrNoActiveGame):
		return c.Reply("🎃 This pumpkin was already harvested.")
	case err != nil && harvest == nil:
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to harvest pumpkin")
		return c.Reply(msgTryLater)
	case err != nil:
		log.Error().Err(err).Int64("chat_id", chat.ID).Int64("user_id", sender.ID).Msg("Failed to persist harvest")
	}

	return c.Reply(fmt.Sprintf("✨ Your pumpkin has grown into a magnificent coach! %s\n"+
		"Size: %d/%d\n"+
		"The Fairy Godmother rewards you with %d royal coins!\n"+
		"You can plant a new pumpkin now with /pumpkin",
		strings.Repeat("🎃", harvest.Size), harvest.Size, h.garden.Config().MaxSize, harvest.Reward))
}

func (h *GameHandler) plant(ctx context.Context, c tele.Context) error {
	chat := c.Chat()
	sender := c.Sender()

	p, err := h.garden.Plant(ctx, chat.ID, sender.ID)
	if errors.Is(err, game.ErrGameAlreadyActive) {
		return c.Reply("🌱 You already have a pumpkin growing! Check it with /pumpkin")
	}
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to plant pumpkin")
		return c.Reply(msgTryLater)
	}

	return c.Reply(fmt.Sprintf("🌱 You've planted a magical pumpkin seed!\n"+
		"Base size: %d/%d\n"+
		"It will take about %s to grow into a coach.\n"+
		"Check back with /pumpkin to see its progress!",
		p.BaseSize, h.garden.Config().MaxSize, moderation.HumanDuration(p.Duration)))
}

// FormatGrowing describes a pumpkin that is not ready yet.
func FormatGrowing(g *garden.Growth, maxSize int) string {
	sprout := "🌱"
	if g.Size >= 2 {
		sprout = strings.Repeat("🎃", g.Size)
	}
	left := g.Remaining.Truncate(time.Minute)
	return fmt.Sprintf("%s Your pumpkin is still growing!\n"+
		"Current size: %d/%d\n"+
		"Time until fully grown: %dh %dm\n"+
		"Check back later to harvest your magical coach!",
		sprout, g.Size, maxSize, int(left.Hours()), int(left.Minutes())%60)
}

// HandleFortune handles the /fortune command.
func (h *GameHandler) HandleFortune(c tele.Context) error {
	ctx := context.Background()
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}
	chat := c.Chat()
	sender := c.Sender()
	name := displayName(sender)

	if err := c.Notify(tele.Typing); err != nil {
		log.Debug().Err(err).Msg("Failed to send chat action")
	}

	prophecy := h.fortune.Prophecy(ctx, name)
	roll, err := h.profiles.RollLuck(ctx, chat.ID, sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chat.ID).Int64("user_id", sender.ID).Msg("Failed to persist luck")
	}

	return c.Reply(fmt.Sprintf("🔮 The Fairy Godmother's Prophecy for %s\n\n"+
		"%s\n\n"+
		"Luck Rating: %d/100 (%s)\n"+
		"This magic will last for 12 hours, but you can try again anytime.",
		name, prophecy, roll.New, FormatLuckChange(roll)))
}

// FormatLuckChange renders the luck delta with an arrow.
func FormatLuckChange(r service.LuckRoll) string {
	switch d := r.Delta(); {
	case d > 0:
		return fmt.Sprintf("⬆️ +%d", d)
	case d < 0:
		return fmt.Sprintf("⬇️ -%d", -d)
	default:
		return "↔️ No change"
	}
}

// HandleProfile handles the /profile command.
func (h *GameHandler) HandleProfile(c tele.Context) error {
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	target, _ := ResolveTarget(c.Message(), c.Args(), h.dir)
	if target == nil {
		target = c.Sender()
	}

	p := h.profiles.Profile(c.Chat().ID, target.ID)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 Royal record of %s\n\n", displayName(target)))
	sb.WriteString(fmt.Sprintf("💰 Royal coins: %d\n", p.Record.Coins))
	sb.WriteString(fmt.Sprintf("🍀 Luck: %d/100\n", p.Record.Luck))
	sb.WriteString(fmt.Sprintf("👠 Slippers found: %d\n", p.Record.FoundCount))
	sb.WriteString(fmt.Sprintf("🎃 Pumpkins grown: %d\n", p.Record.GrownCount))
	if p.Warnings > 0 {
		sb.WriteString(fmt.Sprintf("⚠️ Curses: %d\n", p.Warnings))
	}
	if plot, ok := h.garden.Plot(c.Chat().ID, target.ID); ok {
		sb.WriteString(fmt.Sprintf("🌱 Pumpkin planted %s ago\n",
			moderation.HumanDuration(time.Since(plot.PlantedAt()))))
	}
	return c.Reply(sb.String())
}

// HandleTop handles the /top command.
func (h *GameHandler) HandleTop(c tele.Context) error {
	if !inGroup(c) {
		return c.Reply(msgGroupOnly)
	}

	entries := h.ranking.TopUsers(c.Chat().ID, service.DefaultLeaderboardSize)
	return c.Reply(FormatLeaderboard(entries, h.dir.Name))
}

// FormatLeaderboard renders the royal treasury ranking.
func FormatLeaderboard(entries []store.RankedUser, name func(int64) string) string {
	if len(entries) == 0 {
		return "🏆 The royal treasury is empty. Play /slipper or /pumpkin to earn coins!"
	}

	var sb strings.Builder
	sb.WriteString("🏆 Royal Treasury\n\n")
	for i, e := range entries {
		medal := fmt.Sprintf("%d.", i+1)
		switch i {
		case 0:
			medal = "🥇"
		case 1:
			medal = "🥈"
		case 2:
			medal = "🥉"
		}
		sb.WriteString(fmt.Sprintf("%s %s: %d coins\n", medal, name(e.UserID), e.Record.Coins))
	}
	return sb.String()
}
