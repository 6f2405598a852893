package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Belogorec/marsu-bot2/internal/api/handler"
	"github.com/Belogorec/marsu-bot2/internal/api/middleware"
)

// WebhookPathPrefix is where Bot API updates are posted; the secret follows
const WebhookPathPrefix = "/telegram/webhook/"

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger *slog.Logger
	// StorageKind names the active storage backend for the health check
	StorageKind string

	// Admin routes are mounted only when both are set
	AdminService  handler.AdminService
	Authenticator middleware.Authenticator

	// The webhook route is mounted only when both are set
	Updates       handler.UpdateHandler
	WebhookSecret string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	loggingMiddleware := middleware.Logging(cfg.Logger, WebhookPathPrefix)
	recoveryMiddleware := middleware.Recovery(cfg.Logger, WebhookPathPrefix)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Health check endpoint (no auth)
	healthHandler := handler.NewHealthHandler(cfg.StorageKind)
	api.HandleFunc("/health", healthHandler.Get).Methods(http.MethodGet)

	if cfg.AdminService != nil && cfg.Authenticator != nil {
		adminHandler := handler.NewAdminHandler(cfg.AdminService)

		admin := api.NewRoute().Subrouter()
		admin.Use(middleware.Auth(cfg.Authenticator))
		admin.HandleFunc("/summary", adminHandler.Summary).Methods(http.MethodGet)
		admin.HandleFunc("/participants/{id}", adminHandler.Participant).Methods(http.MethodGet)
		admin.HandleFunc("/audit", adminHandler.Audit).Methods(http.MethodGet)
	}

	if cfg.Updates != nil && cfg.WebhookSecret != "" {
		webhookHandler := handler.NewWebhookHandler(cfg.WebhookSecret, cfg.Updates, cfg.Logger)

		webhook := r.PathPrefix("/telegram").Subrouter()
		webhook.Use(recoveryMiddleware)
		webhook.Use(loggingMiddleware)
		webhook.HandleFunc("/webhook/{secret}", webhookHandler.Receive).Methods(http.MethodPost)
	}

	return r
}
