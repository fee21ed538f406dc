package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// client roles
const (
	RoleMama  = "mama"
	RoleGuest = "guest"
)

// command types sent by clients
const (
	// a guest announces itself with its durable ID, mood and mode
	CmdGuestRegister = "guest.register"

	// a guest leaves the queue or its session voluntarily
	CmdGuestLeave = "guest.leave"

	// a guest chat message for the operator
	CmdGuestMessage = "guest.message"

	// a guest announces a tip checkout is underway
	CmdGuestTip = "guest.tip"

	// a client (re)joins its room by tag
	CmdJoinRoom = "join_room"

	// the operator accepts a waiting guest
	CmdMamaAccept = "mama.acceptGuest"

	// the operator ends the active session
	CmdMamaEnd = "mama.endSession"

	// an operator chat message for the active guest
	CmdMamaMessage = "mama.message"

	// the operator asks for its voice room credentials again
	CmdVoiceJoin = "voice.join.request"

	// is sent by clients to keep the connection alive
	TypePing = "ping"

	// is sent by server in response to ping
	TypePong = "pong"

	// is sent when an error occurs
	TypeError = "error"

	// is sent by server before shutdown
	TypeServerShutdown = "server_shutdown"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer
	maxMessageSize = 32 * 1024 // 32 KB

	// chat rate limiting: sustained rate and burst
	chatMessagesPerSecond = 0.5
	chatMessageBurst      = 5

	// content size limits
	maxChatMessageSize = 2000 // characters
)

// hub connection limit constants
const (
	maxConnectionsPerIP = 10
)

// errors
var (
	ErrInvalidMessage    = errors.New("invalid message format")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrMessageTooLarge   = errors.New("message too large")
	ErrOperatorOnly      = errors.New("operator-only command")
	ErrNoOperator        = errors.New("operator not connected")
)

// represents a websocket message with typed payload
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// payload of guest.register
type RegisterPayload struct {
	GuestID string `json:"guestId"`
	Mood    string `json:"mood"`
	Mode    string `json:"mode"`
	RoomID  string `json:"roomId"`
}

// payload of join_room
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// payload of mama.acceptGuest
type AcceptGuestPayload struct {
	GuestSocketID string `json:"guestSocketId"`
}

// payload of guest.message and mama.message
type ChatTextPayload struct {
	Text string `json:"text"`
}

// payload of guest.tip
type TipPayload struct {
	Amount int64 `json:"amount"`
}

// payload of server_shutdown
type ServerShutdownPayload struct {
	Reason string `json:"reason"`
}

// represents a websocket client connection
type Client struct {
	// unique identifier for this connection, the guest's handle
	ID string

	// mama or guest
	Role string

	// IP address of the client (for connection tracking)
	IPAddress string

	// room tag this client has joined, guarded by mu
	roomTag string

	// websocket connection
	conn *websocket.Conn

	// hub reference for message delivery
	hub *Hub

	// buffered channel of outbound messages
	send chan []byte

	// mutex for thread-safe operations
	mu sync.RWMutex

	// flag indicating if client is closed
	closed bool

	// chat rate limiter
	chatLimiter *rate.Limiter
}

// maintains the set of active connections and delivers lounge events to them
type Hub struct {
	// registered clients by connection handle
	clients map[string]*Client

	// the single operator connection handle, empty when absent
	operatorID string

	// room membership by tag
	rooms map[string]map[string]*Client

	// register requests from clients
	Register chan *Client

	// unregister requests from clients
	Unregister chan *Client

	// mutex for thread-safe access to clients and rooms
	mu sync.RWMutex

	// command handlers by message type
	handlers map[string]MessageHandler

	// flag indicating if hub is running
	running bool

	// channel to signal shutdown
	shutdown chan struct{}

	// connection tracking: IP address -> count of connections
	ipConnections map[string]int

	// callback for client disconnect
	onClientDisconnect func(client *Client)

	// callback after a client is registered
	onClientRegistered func(client *Client)
}

// processes a specific command type
type MessageHandler func(hub *Hub, client *Client, msg *Message) error
