package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Belogorec/marsu-bot2/internal/api"
	"github.com/Belogorec/marsu-bot2/internal/config"
	"github.com/Belogorec/marsu-bot2/internal/factory"
	"github.com/Belogorec/marsu-bot2/internal/telegram"
)

// setupTimeout bounds webhook registration at startup
const setupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("configuration error: %v", err)
	}
	level, _ := cfg.SlogLevel()

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	if err := telegram.UseLogger(logger); err != nil {
		logger.Warn("could not install bot api logger", slog.String("error", err.Error()))
	}

	app, err := factory.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, app, logger); err != nil {
		logger.Error("bot stopped with error", slog.String("error", err.Error()))
		stop()
		_ = app.Close()
		os.Exit(1)
	}
	logger.Info("bot stopped")
}

func run(ctx context.Context, cfg config.Config, app *factory.App, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var server *api.Server
	if cfg.ServesHTTP() {
		serverConfig := api.DefaultServerConfig()
		serverConfig.Port = cfg.HTTPPort
		server = api.NewServer(app.Router, serverConfig, logger)
	}

	// Bind before registering the webhook so updates have somewhere to go
	var ln net.Listener
	if server != nil {
		var err error
		if ln, err = server.Listen(); err != nil {
			return err
		}
	}

	setupCtx, setupCancel := context.WithTimeout(ctx, setupTimeout)
	var err error
	if cfg.Mode == config.ModeWebhook {
		err = app.Client.SetWebhook(setupCtx, cfg.WebhookEndpoint())
	} else {
		err = app.Client.DeleteWebhook(setupCtx)
	}
	setupCancel()
	if err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		return err
	}

	errCh := make(chan error, 2)
	running := 0
	if server != nil {
		running++
		go func() { errCh <- server.Serve(ctx, ln) }()
	}
	if cfg.Mode == config.ModePolling {
		running++
		go func() { errCh <- app.Gateway.Run(ctx) }()
	}

	logger.Info("bot started",
		slog.String("mode", cfg.Mode),
		slog.String("storage", cfg.Storage),
		slog.String("channel", cfg.Channel),
		slog.Bool("http", server != nil),
	)

	// The first component to stop takes the rest down with it
	var firstErr error
	for i := 0; i < running; i++ {
		err := <-errCh
		if firstErr == nil {
			firstErr = err
		}
		if i == 0 {
			if ctx.Err() != nil {
				logger.Info("shutdown signal received")
			}
			cancel()
		}
	}
	return firstErr
}
