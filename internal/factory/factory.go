package factory

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Belogorec/marsu-bot2/internal/api"
	"github.com/Belogorec/marsu-bot2/internal/bot"
	"github.com/Belogorec/marsu-bot2/internal/config"
	"github.com/Belogorec/marsu-bot2/internal/dependencies/clock"
	"github.com/Belogorec/marsu-bot2/internal/dependencies/idgen"
	"github.com/Belogorec/marsu-bot2/internal/services/auth"
	"github.com/Belogorec/marsu-bot2/internal/services/membership"
	"github.com/Belogorec/marsu-bot2/internal/services/registration"
	"github.com/Belogorec/marsu-bot2/internal/storage"
	"github.com/Belogorec/marsu-bot2/internal/storage/csvfile"
	"github.com/Belogorec/marsu-bot2/internal/storage/memory"
	redisstorage "github.com/Belogorec/marsu-bot2/internal/storage/redis"
	"github.com/Belogorec/marsu-bot2/internal/storage/sqlite"
	"github.com/Belogorec/marsu-bot2/internal/telegram"
)

// BotAPI is what the application needs from the messaging platform
type BotAPI interface {
	telegram.Transport
	membership.Fetcher
	Username() string
}

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock clock.Clock
	IDs   idgen.Generator
	Bot   BotAPI
	// Client is the live Bot API connection; nil when Bot is a stand-in
	Client *telegram.Client

	// Services
	Membership   *membership.Checker
	Registration *registration.Service
	Dispatcher   *bot.Dispatcher
	Gateway      *telegram.Gateway
	// AuthService is nil when no operator token hash is configured
	AuthService *auth.Service

	// Router serves the admin API and, in webhook mode, the update endpoint
	Router http.Handler
}

// New creates a new application with all dependencies wired. It opens the
// configured storage backend and authenticates against the Bot API.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	// Use no-op logger if not provided
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	client, err := telegram.Connect(telegram.Config{
		Token:       cfg.BotToken,
		APIEndpoint: cfg.APIEndpoint,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("connected to bot api", slog.String("username", client.Username()))

	app, err := newWithDependencies(store, client, clock.New(), idgen.New(), cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	app.Client = client
	return app, nil
}

// OpenStorage opens the backend named by cfg.Storage
func OpenStorage(cfg config.Config) (storage.Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		store, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("open redis storage: %w", err)
		}
		return store, nil
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, nil
	case config.StorageCSV:
		store, err := csvfile.Open(cfg.CSVDir)
		if err != nil {
			return nil, fmt.Errorf("open csv storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid storage %q: must be memory, redis, sqlite or csv", cfg.Storage)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	botAPI BotAPI,
	clk clock.Clock,
	ids idgen.Generator,
	cfg config.Config,
	logger *slog.Logger,
) (*App, error) {
	checker := membership.New(botAPI, cfg.Channel, cfg.OracleTimeout, logger.With(slog.String("component", "membership")))

	registrationService := registration.New(store, checker, clk, ids, registration.Config{
		Admins:       cfg.Admins,
		StoreTimeout: cfg.StoreTimeout,
	}, logger.With(slog.String("component", "registration")))

	dispatcher := bot.NewDispatcher(registrationService, bot.Config{
		Channel:     cfg.Channel,
		BotUsername: botAPI.Username(),
	}, logger.With(slog.String("component", "dispatcher")))

	gateway := telegram.NewGateway(botAPI, dispatcher, logger.With(slog.String("component", "gateway")))

	var authService *auth.Service
	routerCfg := api.RouterConfig{
		Logger:      logger,
		StorageKind: cfg.Storage,
	}
	if cfg.APITokenHash != "" {
		svc, err := auth.New(clk, auth.Config{TokenHash: cfg.APITokenHash})
		if err != nil {
			return nil, err
		}
		authService = svc
		routerCfg.AdminService = registrationService
		routerCfg.Authenticator = authService
	}
	if cfg.Mode == config.ModeWebhook {
		routerCfg.Updates = gateway
		routerCfg.WebhookSecret = cfg.WebhookSecret
	}

	return &App{
		Storage:      store,
		Clock:        clk,
		IDs:          ids,
		Bot:          botAPI,
		Membership:   checker,
		Registration: registrationService,
		Dispatcher:   dispatcher,
		Gateway:      gateway,
		AuthService:  authService,
		Router:       api.NewRouter(routerCfg),
	}, nil
}

// Close releases the storage backend
func (a *App) Close() error {
	return a.Storage.Close()
}
