package main

import (
	"github.com/Miyuslav/Snack-no-trace/internal/config"
	"github.com/Miyuslav/Snack-no-trace/internal/identity"
	"github.com/Miyuslav/Snack-no-trace/internal/lounge"
	"github.com/Miyuslav/Snack-no-trace/internal/payments"
	"github.com/Miyuslav/Snack-no-trace/internal/voice"
	"github.com/Miyuslav/Snack-no-trace/internal/waitlist"
	ws "github.com/Miyuslav/Snack-no-trace/internal/websocket"
	"github.com/gin-gonic/gin"
)

// holds all dependencies and state for the API server
type Server struct {
	config       *config.Config
	registry     *identity.Registry
	queue        *waitlist.Queue
	orchestrator *lounge.Orchestrator
	voice        *voice.Client
	payments     *payments.Client
	hub          *ws.Hub
	router       *gin.Engine
}
