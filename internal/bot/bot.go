// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cinderella-bot/internal/config"
	"cinderella-bot/internal/game"
	"cinderella-bot/internal/game/garden"
	"cinderella-bot/internal/game/hunt"
	"cinderella-bot/internal/handler"
	"cinderella-bot/internal/moderation"
	"cinderella-bot/internal/service"
	"cinderella-bot/internal/store"
)

const defaultBotName = "Cinderella Bot"

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot       *tele.Bot
	cfg       *config.Config
	ctx       context.Context
	cancel    context.CancelFunc
	scheduler *Scheduler

	policy  *handler.AdminPolicy
	dir     *handler.Directory
	tracker *handler.Tracker
	access  *PrivateAccess

	// Handlers
	moderationHandler *handler.ModerationHandler
	gameHandler       *handler.GameHandler
	utilityHandler    *handler.UtilityHandler
	magicHandler      *handler.MagicHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config    *config.Config
	Store     *store.Store
	Profiles  *service.ProfileService
	Ranking   *service.RankingService
	Fortune   *service.FortuneService
	Engine    *moderation.Engine
	Inference handler.Inference
	Registry  *game.Registry
	Hunt      *hunt.Game
	Garden    *garden.Game

	// Offline skips the getMe call on startup.
	Offline bool
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:   deps.Config.Bot.Token,
		Poller:  &tele.LongPoller{Timeout: deps.Config.Bot.PollTimeout},
		Offline: deps.Offline,
		OnError: func(err error, c tele.Context) {
			e := log.Error().Err(err)
			if c != nil && c.Chat() != nil {
				e = e.Int64("chat_id", c.Chat().ID)
			}
			e.Msg("Handler failed")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		bot:       teleBot,
		cfg:       deps.Config,
		ctx:       ctx,
		cancel:    cancel,
		scheduler: NewScheduler(ctx),
		policy:    handler.NewAdminPolicy(deps.Config.Admin.IDs, deps.Store, teleBot),
		dir:       handler.NewDirectory(),
		tracker:   handler.NewTracker(handler.MessageRetention),
		access:    NewPrivateAccess(),
	}

	botName := defaultBotName
	if teleBot.Me != nil && teleBot.Me.FirstName != "" {
		botName = teleBot.Me.FirstName
	}

	// Initialize handlers
	b.moderationHandler = handler.NewModerationHandler(deps.Engine, deps.Store, deps.Profiles, b.policy, b.dir,
		deps.Config.Moderation.MuteDuration)
	b.gameHandler = handler.NewGameHandler(deps.Hunt, deps.Garden, deps.Profiles, deps.Ranking, deps.Fortune,
		b.policy, b.dir, b.tracker)
	b.utilityHandler = handler.NewUtilityHandler(ctx, botName, deps.Registry, deps.Profiles, deps.Ranking,
		b.dir, b.tracker)
	b.magicHandler = handler.NewMagicHandler(ctx, deps.Inference)

	deps.Hunt.OnExpire(b.gameHandler.HuntExpiredNotifier(teleBot))

	b.registerMiddleware(deps.Profiles)
	b.registerHandlers()

	if err := b.registerJobs(); err != nil {
		cancel()
		return nil, err
	}

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware(counter MessageCounter) {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg, b.access))
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(ActivityMiddleware(b.dir, counter))
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Utility handlers
	b.bot.Handle("/start", b.utilityHandler.HandleStart)
	b.bot.Handle("/help", b.utilityHandler.HandleHelp)
	b.bot.Handle("/status", b.utilityHandler.HandleStatus)
	b.bot.Handle("/invite", b.utilityHandler.HandleInvite)
	b.bot.Handle("/mice", b.utilityHandler.HandleMice)
	b.bot.Handle("/roast", b.utilityHandler.HandleRoast)

	// Royal court handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.policy))
	adminGroup.Handle("/curse", b.moderationHandler.HandleCurse)
	adminGroup.Handle("/banish", b.moderationHandler.HandleBanish)
	adminGroup.Handle("/silence", b.moderationHandler.HandleSilence)
	adminGroup.Handle("/pardon", b.moderationHandler.HandlePardon)
	adminGroup.Handle("/settings", b.moderationHandler.HandleSettings)

	// Reading the rules is open to everyone, proclaiming them is checked inside.
	b.bot.Handle("/royal_rules", b.moderationHandler.HandleRules)
	b.bot.Handle("/warnings", b.moderationHandler.HandleWarnings)

	// Game handlers
	b.bot.Handle("/slipper", b.gameHandler.HandleSlipper)
	b.bot.Handle("/pumpkin", b.gameHandler.HandlePumpkin)
	b.bot.Handle("/fortune", b.gameHandler.HandleFortune)
	b.bot.Handle("/profile", b.gameHandler.HandleProfile)
	b.bot.Handle("/top", b.gameHandler.HandleTop)

	// Inference handlers
	b.bot.Handle("/mood", b.magicHandler.HandleMood)
	b.bot.Handle("/imagine", b.magicHandler.HandleImagine)
	b.bot.Handle("/speak", b.magicHandler.HandleSpeak)

	// Membership changes
	b.bot.Handle(tele.OnUserJoined, b.utilityHandler.HandleUserJoined)
	b.bot.Handle(tele.OnUserLeft, b.utilityHandler.HandleUserLeft)

	// Plain messages only pass through the middleware chain so they are counted.
	b.bot.Handle(tele.OnText, noop)
	b.bot.Handle(tele.OnMedia, noop)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

func noop(tele.Context) error {
	return nil
}

// registerJobs registers the periodic maintenance jobs.
func (b *Bot) registerJobs() error {
	err := b.scheduler.Add("admin-refresh", b.cfg.Scheduler.AdminRefresh, func(ctx context.Context) {
		n := b.policy.RefreshAll(ctx)
		log.Info().Int("groups", n).Msg("Admin cache refreshed")
	})
	if err != nil {
		return err
	}

	return b.scheduler.Add("message-cleanup", b.cfg.Scheduler.MessageCleanup, func(context.Context) {
		if n := b.tracker.Clean(b.bot, time.Now()); n > 0 {
			log.Info().Int("count", n).Msg("Cleaned up old messages")
		}
	})
}

// handleCallback routes callbacks to appropriate handlers
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")
	log.Debug().Str("data", data).Msg("Callback received")

	if hunt.IsCallback(data) {
		return b.gameHandler.HandleHuntCallback(c, data)
	}

	return c.Respond(&tele.CallbackResponse{Text: "🔮 This spell has faded."})
}

// Start starts the scheduler and the bot polling. It blocks until Stop.
func (b *Bot) Start() {
	log.Info().Int("jobs", b.scheduler.Len()).Msg("Starting scheduler...")
	b.scheduler.Start()

	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.cancel()
	b.scheduler.Stop()
	b.bot.Stop()
}

// Context returns the bot lifetime context. It is cancelled by Stop.
func (b *Bot) Context() context.Context {
	return b.ctx
}
