// Package main is the entry point for the Cinderella bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"cinderella-bot/internal/bot"
	"cinderella-bot/internal/config"
	"cinderella-bot/internal/game"
	"cinderella-bot/internal/game/garden"
	"cinderella-bot/internal/game/hunt"
	"cinderella-bot/internal/moderation"
	"cinderella-bot/internal/pkg/db"
	"cinderella-bot/internal/pkg/logging"
	"cinderella-bot/internal/provider"
	"cinderella-bot/internal/service"
	"cinderella-bot/internal/store"
)

func main() {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	log.Info().Str("backend", cfg.Store.Backend).Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the state store
	persister, closeBackend, err := openPersister(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage backend")
	}
	defer closeBackend()

	st, err := store.Open(ctx, persister)
	if err != nil {
		// Never start over an unreadable snapshot; it would be overwritten.
		log.Fatal().Err(err).Msg("Failed to load state snapshot")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close state store")
		}
	}()

	// Initialize services
	profiles := service.NewProfileService(st)
	ranking := service.NewRankingService(st)

	client := provider.New(provider.Config{
		Token:          cfg.Provider.Token,
		BaseURL:        cfg.Provider.BaseURL,
		TextModel:      cfg.Provider.TextModel,
		SentimentModel: cfg.Provider.SentimentModel,
		SpeechModel:    cfg.Provider.SpeechModel,
		ImageModel:     cfg.Provider.ImageModel,
		Timeout:        cfg.Provider.Timeout,
		MaxRetries:     cfg.Provider.MaxRetries,
		RetryWait:      cfg.Provider.RetryWait,
	})
	if !client.Enabled() {
		log.Warn().Msg("Inference provider token not set, magic commands will use fallbacks")
	}
	fortune := service.NewFortuneService(client)

	engine, err := moderation.NewEngine(st, cfg.Moderation.MaxWarnings)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create moderation engine")
	}

	// Initialize game registry and register games
	gameRegistry := game.NewRegistry()

	huntGame := hunt.New(hunt.Config{
		Rows:    cfg.Games.Hunt.Rows,
		Cols:    cfg.Games.Hunt.Cols,
		Timeout: cfg.Games.Hunt.Timeout,
		Reward:  cfg.Games.Hunt.Reward,
	}, profiles)
	if err := gameRegistry.Register(huntGame); err != nil {
		log.Fatal().Err(err).Msg("Failed to register slipper hunt")
	}

	gardenGame := garden.New(garden.Config{
		HourUnit:      cfg.Games.Garden.HourUnit,
		MaxSize:       cfg.Games.Garden.MaxSize,
		RewardPerUnit: cfg.Games.Garden.RewardPerUnit,
	}, profiles)
	if err := gameRegistry.Register(gardenGame); err != nil {
		log.Fatal().Err(err).Msg("Failed to register pumpkin garden")
	}

	log.Info().
		Int("game_count", gameRegistry.Count()).
		Strs("games", gameRegistry.Commands()).
		Msg("Games registered")

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:    cfg,
		Store:     st,
		Profiles:  profiles,
		Ranking:   ranking,
		Fortune:   fortune,
		Engine:    engine,
		Inference: client,
		Registry:  gameRegistry,
		Hunt:      huntGame,
		Garden:    gardenGame,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// openPersister builds the configured storage backend. The returned func
// releases backend resources after the store is closed.
func openPersister(ctx context.Context, cfg *config.Config) (store.Persister, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendFile:
		p, err := store.NewFilePersister(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", p.Path()).Msg("Using snapshot file")
		return p, func() {}, nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		p := store.NewPostgresPersister(pool.Pool)
		if err := p.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		return p, pool.Close, nil

	case config.BackendMemory:
		log.Warn().Msg("Using in-memory store, state will be lost on exit")
		return store.NewMemoryPersister(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
