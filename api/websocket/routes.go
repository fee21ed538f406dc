package websocket

import (
	"github.com/gin-gonic/gin"

	ws "github.com/Miyuslav/Snack-no-trace/internal/websocket"
)

func RegisterRoutes(router *gin.Engine, hub *ws.Hub) {
	router.GET("/ws", WebSocketHandler(hub))
}
