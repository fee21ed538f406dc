package websocket

type ConnectParams struct {
	Role string `form:"role" binding:"omitempty,oneof=mama guest"` // connection role, defaults to guest
}
