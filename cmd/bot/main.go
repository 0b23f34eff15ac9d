package main

import (
	"github.com/joho/godotenv"
	"github.com/whatsay/whatsay-bot/internal/bot"
	"github.com/whatsay/whatsay-bot/internal/conversation"
	"github.com/whatsay/whatsay-bot/internal/credits"
	"github.com/whatsay/whatsay-bot/internal/generator"
	"github.com/whatsay/whatsay-bot/internal/i18n"
	"github.com/whatsay/whatsay-bot/internal/metrics"
	"github.com/whatsay/whatsay-bot/internal/middleware"
	"github.com/whatsay/whatsay-bot/internal/session"
	"github.com/whatsay/whatsay-bot/internal/storage"
	"github.com/whatsay/whatsay-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load .env if present, then configuration
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Domain services
	ledger := credits.NewLedger(store, logger)
	conversations := conversation.NewStore(store, logger)

	gen := generator.New(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)

	sessions := session.NewManager(ledger, conversations, gen, logger)

	// Localized interface texts
	localizer, err := i18n.NewLocalizer(cfg.I18n.Dir, cfg.I18n.DefaultLanguage, cfg.I18n.Languages)
	if err != nil {
		logger.Fatal("Failed to initialize localizer", zap.Error(err))
	}

	limiter := middleware.NewRateLimiter(
		cfg.RateLimit.Enabled,
		cfg.RateLimit.RequestsPerMinute,
		cfg.RateLimit.Burst,
		logger,
	)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	// Initialize bot
	b, err := bot.New(
		cfg.Telegram.Token,
		store,
		ledger,
		conversations,
		sessions,
		localizer,
		limiter,
		cfg.Telegram.BuyCreditsURL,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
