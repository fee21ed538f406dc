package main

import (
	"github.com/Miyuslav/Snack-no-trace/internal/config"
	"github.com/Miyuslav/Snack-no-trace/internal/identity"
	"github.com/Miyuslav/Snack-no-trace/internal/logger"
	"github.com/Miyuslav/Snack-no-trace/internal/lounge"
	"github.com/Miyuslav/Snack-no-trace/internal/payments"
	"github.com/Miyuslav/Snack-no-trace/internal/voice"
	"github.com/Miyuslav/Snack-no-trace/internal/waitlist"
	ws "github.com/Miyuslav/Snack-no-trace/internal/websocket"
	"github.com/gin-gonic/gin"
)

// creates and configures a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	registry := identity.NewRegistry()
	queue := waitlist.New()
	hub := ws.NewHub()

	voiceClient := voice.NewClient(cfg.DailyAPIKey, cfg.DailyRoomURL)
	if voiceClient == nil {
		logger.Info("daily credentials not set, voice sessions disabled")
	}

	stripeClient := payments.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	if stripeClient == nil {
		logger.Info("stripe credentials not set, tipping disabled")
	}

	// the hub delivers lounge events and answers presence queries
	orchestrator := lounge.New(registry, queue, hub, hub, voiceClient, cfg.Durations)

	ws.RegisterHandlers(hub, orchestrator, cfg.MamaRoomID)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	server := &Server{
		config:       cfg,
		registry:     registry,
		queue:        queue,
		orchestrator: orchestrator,
		voice:        voiceClient,
		payments:     stripeClient,
		hub:          hub,
		router:       router,
	}

	RegisterRoutes(router, server)

	return server, nil
}
