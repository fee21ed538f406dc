package websocket

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Miyuslav/Snack-no-trace/internal/errors"
	"github.com/Miyuslav/Snack-no-trace/internal/logger"
	ws "github.com/Miyuslav/Snack-no-trace/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     ws.CheckOrigin,
}

// handles websocket connections for the lounge. Guests connect anonymously;
// the operator console connects with role=mama.
func WebSocketHandler(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params ConnectParams
		if err := c.ShouldBindQuery(&params); err != nil {
			errors.BadRequest(c, "invalid parameters", err)
			return
		}

		role := ws.RoleGuest
		if params.Role == ws.RoleMama {
			role = ws.RoleMama
		}

		// check connection limits before accepting new connection
		ipAddress := c.ClientIP()
		canAccept, reason := hub.CanAcceptConnection(ipAddress)

		if !canAccept {
			errors.TooManyRequests(c, reason)
			return
		}

		clientID, err := ws.GenerateClientID()
		if err != nil {
			errors.InternalError(c, "failed to generate client ID", err)
			return
		}

		// upgrade HTTP connection to websocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection",
				"role", role,
				"ip", ipAddress,
			)

			return
		}

		// track IP connection only after successful upgrade
		hub.TrackIPConnection(ipAddress)

		client := ws.NewClient(clientID, role, ipAddress, conn, hub)

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()

		logger.Info("websocket connection established",
			"client_id", clientID,
			"role", role,
			"ip", ipAddress,
		)
	}
}
