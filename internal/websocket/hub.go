package websocket

import (
	"time"

	"github.com/Miyuslav/Snack-no-trace/internal/logger"
)

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		rooms:         make(map[string]map[string]*Client),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		handlers:      make(map[string]MessageHandler),
		running:       false,
		shutdown:      make(chan struct{}),
		ipConnections: make(map[string]int),
	}
}

// registers a handler for a specific command type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[messageType] = handler
}

// sets callback to be called when a client disconnects
func (h *Hub) OnClientDisconnect(callback func(client *Client)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClientDisconnect = callback
}

// sets callback to be called after a client is registered
func (h *Hub) OnClientRegistered(callback func(client *Client)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClientRegistered = callback
}

// starts the hub's main loop
func (h *Hub) Run() {
	h.running = true
	defer func() {
		h.running = false
	}()

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// adds a client to the hub. A second operator connection supersedes the
// first: the console may reopen in a new tab and only the newest one counts.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	callback := h.onClientRegistered

	var superseded *Client

	if client.IsOperator() {
		if h.operatorID != "" && h.operatorID != client.ID {
			superseded = h.clients[h.operatorID]
		}

		h.operatorID = client.ID
	}

	h.clients[client.ID] = client

	logger.Info("client registered",
		"client_id", client.ID,
		"role", client.Role,
	)

	h.mu.Unlock()

	if superseded != nil {
		logger.Info("operator connection superseded",
			"old_client_id", superseded.ID,
			"new_client_id", client.ID,
		)

		superseded.Close()
	}

	// callback runs outside the lock: it reaches back into the hub to
	// deliver events
	if callback != nil {
		callback(client)
	}
}

// removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	// capture callback reference under lock
	callback := h.onClientDisconnect

	if _, exists := h.clients[client.ID]; !exists {
		h.mu.Unlock()
		return
	}

	delete(h.clients, client.ID)
	h.leaveRoomLocked(client)
	client.Close()

	if h.operatorID == client.ID {
		h.operatorID = ""
	}

	if client.IPAddress != "" {
		h.ipConnections[client.IPAddress]--

		if h.ipConnections[client.IPAddress] <= 0 {
			delete(h.ipConnections, client.IPAddress)
		}
	}

	logger.Info("client unregistered",
		"client_id", client.ID,
		"role", client.Role,
	)

	h.mu.Unlock()

	// call disconnect callback outside lock (it takes the lounge lock)
	if callback != nil {
		callback(client)
	}
}

// runs the handler for an incoming command. Called from the client's read
// goroutine so one connection's commands apply in arrival order.
func (h *Hub) dispatch(client *Client, msg *Message) {
	h.mu.RLock()
	handler, exists := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !exists {
		logger.Warn("unhandled message type received",
			"message_type", msg.Type,
			"client_id", client.ID,
		)

		client.SendError("bad_request", "unsupported message type", "message type not recognized")
		return
	}

	if err := handler(h, client, msg); err != nil {
		logger.ErrorErr(err, "handler error",
			"message_type", msg.Type,
			"client_id", client.ID,
		)

		client.SendError("server_error", "failed to process message", err.Error())
	}
}

// moves a client into a room, leaving its previous one
func (h *Hub) JoinRoom(client *Client, roomTag string) {
	if roomTag == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveRoomLocked(client)

	if h.rooms[roomTag] == nil {
		h.rooms[roomTag] = make(map[string]*Client)
	}

	h.rooms[roomTag][client.ID] = client
	client.setRoomTag(roomTag)
}

// removes a client from its current room (must be called with lock held)
func (h *Hub) leaveRoomLocked(client *Client) {
	tag := client.RoomTag()
	if tag == "" {
		return
	}

	if members := h.rooms[tag]; members != nil {
		delete(members, client.ID)

		if len(members) == 0 {
			delete(h.rooms, tag)
		}
	}

	client.setRoomTag("")
}

// delivers an event to the operator console; dropped with a log line when
// no operator is connected
func (h *Hub) ToOperator(event string, payload any) {
	h.mu.RLock()
	operator := h.clients[h.operatorID]
	h.mu.RUnlock()

	if operator == nil {
		logger.Debug("event dropped, operator not connected", "event", event)
		return
	}

	h.deliver(operator, event, payload)
}

// delivers an event to one guest connection by handle
func (h *Hub) ToGuest(handle, event string, payload any) {
	h.mu.RLock()
	client := h.clients[handle]
	h.mu.RUnlock()

	if client == nil {
		logger.Debug("event dropped, guest not connected",
			"handle", handle,
			"event", event,
		)
		return
	}

	h.deliver(client, event, payload)
}

// delivers an event to every member of a room
func (h *Hub) ToRoom(roomTag, event string, payload any) {
	h.mu.RLock()

	members := make([]*Client, 0, len(h.rooms[roomTag]))
	for _, client := range h.rooms[roomTag] {
		members = append(members, client)
	}

	h.mu.RUnlock()

	for _, client := range members {
		h.deliver(client, event, payload)
	}
}

func (h *Hub) deliver(client *Client, event string, payload any) {
	msg, err := NewMessage(event, payload)
	if err != nil {
		logger.ErrorErr(err, "failed to create event message", "event", event)
		return
	}

	if err := client.Send(msg); err != nil {
		logger.ErrorErr(err, "failed to send event to client",
			"client_id", client.ID,
			"event", event,
		)
	}
}

// reports whether a connection handle has a live transport
func (h *Hub) IsConnected(handle string) bool {
	h.mu.RLock()
	client := h.clients[handle]
	h.mu.RUnlock()

	return client != nil && !client.IsClosed()
}

// returns the operator's connection handle, empty when absent
func (h *Hub) OperatorID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.operatorID
}

// returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Shutdown() {
	if h.running {
		close(h.shutdown)
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()

	logger.Info("notifying clients of server shutdown")

	shutdownMsg, err := NewMessage(TypeServerShutdown, ServerShutdownPayload{
		Reason: "server is shutting down for maintenance",
	})

	if err == nil {
		for _, client := range h.clients {
			if sendErr := client.Send(shutdownMsg); sendErr != nil {
				logger.ErrorErr(sendErr, "failed to send shutdown notification",
					"client_id", client.ID,
				)
			}
		}
	}

	h.mu.Unlock()

	// give clients time to receive the shutdown message
	time.Sleep(500 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("closing all websocket connections")

	for clientID, client := range h.clients {
		client.Close()
		logger.Debug("closed client", "client_id", clientID)
	}

	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	h.ipConnections = make(map[string]int)
	h.operatorID = ""
}

// checks if a new connection should be allowed based on limits
func (h *Hub) CanAcceptConnection(ipAddress string) (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := h.ipConnections[ipAddress]
	if count >= maxConnectionsPerIP {
		return false, "Maximum connections per IP address exceeded"
	}

	return true, ""
}

// increments the connection count for an IP address
func (h *Hub) TrackIPConnection(ipAddress string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConnections[ipAddress]++
}

// decrements the connection count for an IP address
func (h *Hub) UntrackIPConnection(ipAddress string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConnections[ipAddress]--

	if h.ipConnections[ipAddress] <= 0 {
		delete(h.ipConnections, ipAddress)
	}
}
