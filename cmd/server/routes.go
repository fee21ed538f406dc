package main

import (
	"github.com/Miyuslav/Snack-no-trace/api/rest/health"
	"github.com/Miyuslav/Snack-no-trace/api/rest/tips"
	"github.com/Miyuslav/Snack-no-trace/api/websocket"
	"github.com/gin-gonic/gin"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	router.Use(CORSMiddleware(server.config))
	router.GET("/health", health.Handler)

	websocket.RegisterRoutes(router, server.hub)

	api := router.Group("/api")

	{
		api.GET("/ping", health.PingHandler)

		tips.RegisterRoutes(api, server.payments, server.orchestrator, server.config.FrontendOrigin)
	}
}
