package lounge

import (
	"context"
	"errors"
	"time"

	"github.com/Miyuslav/Snack-no-trace/internal/voice"
	"github.com/Miyuslav/Snack-no-trace/internal/waitlist"
)

// participant status values
const (
	StatusConnected = "connected"
	StatusWaiting   = "waiting"
	StatusActive    = "active"
	StatusFinished  = "finished"
)

// session modes
const (
	ModeText  = "text"
	ModeVoice = "voice"
)

// reasons carried on session.ended, kept wire-compatible with the frontend
const (
	ReasonMamaEnded         = "mama_ended"
	ReasonGuestLeft         = "guest_left"
	ReasonTimeout           = "timeout"
	ReasonDisconnectTimeout = "guest_disconnect_timeout"
	ReasonPayingTimeout     = "paying_disconnect_timeout"
	ReasonSwitched          = "mama_switched_guest"
)

// event names emitted to clients
const (
	EventSessionStarted = "session.started"
	EventSessionWarning = "session.warning"
	EventSessionEnded   = "session.ended"
	EventQueueUpdate    = "queue.update"
	EventQueuePosition  = "queue.position"
	EventMamaNotify     = "mama.notify"
	EventChatMessage    = "chat.message"
	EventSystemMessage  = "system_message"
	EventGuestTip       = "guest.tip"
	EventTipConfirmed   = "tip.confirmed"
	EventVoiceReady     = "voice.join.ready"
	EventVoiceFailed    = "voice.join.failed"
)

var (
	ErrGuestGone      = errors.New("guest is no longer connected")
	ErrNoSession      = errors.New("no active session")
	ErrNotOccupant    = errors.New("guest is not the active occupant")
	ErrDuplicateTimer = errors.New("timer already scheduled")
)

// the per-connection guest record. Created on connect, mutated by
// registration and lifecycle transitions, destroyed when the connection is
// gone and no grace timer protects it.
type Participant struct {
	DurableID string
	Mood      string
	Mode      string
	Status    string
	JoinedAt  time.Time
	IsPaying  bool
	RoomTag   string
}

// tokens issued for a voice session, one per side
type voiceGrants struct {
	RoomURL    string
	GuestToken string
	MamaToken  string
}

// the singleton active session. Created only by Accept, cleared only by End.
type Session struct {
	DurableID   string
	GuestHandle string
	RoomTag     string
	Mood        string
	Mode        string
	StartedAt   time.Time
	MaxDuration time.Duration

	// set when voice token issuance failed for a voice-mode session
	VoiceError string

	voice  *voiceGrants
	timers timerTable

	// guards timer callbacks against firing for a later session
	generation uint64
}

// delivers events to connected clients; implemented by the websocket hub.
// Implementations must not block: failures are logged, never returned.
type Notifier interface {
	ToOperator(event string, payload any)
	ToGuest(handle string, event string, payload any)
	ToRoom(roomTag string, event string, payload any)
}

// answers whether a connection handle currently has a live transport
type Presence interface {
	IsConnected(handle string) bool
}

// issues voice-room tokens; *voice.Client satisfies this, including its
// nil (voice disabled) form
type VoiceIssuer interface {
	Enabled() bool
	CreateMeetingToken(ctx context.Context, userName string, isOwner bool) (*voice.MeetingToken, error)
}

// one side's view of the voice room
type VoiceGrant struct {
	RoomURL string `json:"roomUrl"`
	Token   string `json:"token"`
}

// payload of session.started, sent to both sides (each with its own token)
type SessionStartedPayload struct {
	GuestHandle string      `json:"guestSocketId"`
	Mood        string      `json:"mood,omitempty"`
	Mode        string      `json:"mode,omitempty"`
	RoomTag     string      `json:"roomId,omitempty"`
	StartedAt   int64       `json:"startedAt"`
	MaxMs       int64       `json:"maxMs"`
	Resumed     bool        `json:"resumed"`
	VoiceInfo   *VoiceGrant `json:"voiceInfo,omitempty"`
	VoiceError  string      `json:"voiceError,omitempty"`
}

// payload of session.ended
type SessionEndedPayload struct {
	Reason string `json:"reason"`
}

// payload of session.warning sent to the operator
type SessionWarningPayload struct {
	GuestHandle string `json:"guestSocketId"`
}

// payload of queue.position sent to a freshly registered guest
type QueuePositionPayload struct {
	Position int `json:"position"`
	Size     int `json:"size"`
}

// payload of mama.notify announcing a new waiting guest
type MamaNotifyPayload struct {
	Handle   string `json:"socketId"`
	Mood     string `json:"mood,omitempty"`
	Mode     string `json:"mode,omitempty"`
	JoinedAt int64  `json:"joinedAt"`
}

// payload of chat.message relayed between the paired sides
type ChatMessagePayload struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// payload of system_message notices
type SystemMessagePayload struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Text   string `json:"text"`
	At     int64  `json:"ts,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Amount int64  `json:"amountTotal,omitempty"`
}

// payload of guest.tip forwarded to the operator on tip intent
type TipIntentPayload struct {
	At     int64 `json:"at"`
	Amount int64 `json:"amount,omitempty"`
}

// payload of tip.confirmed sent to the operator from the payment webhook
type TipConfirmedPayload struct {
	Amount            int64  `json:"amount"`
	CheckoutSessionID string `json:"checkoutSessionId"`
	At                int64  `json:"at"`
}

// payload of voice.join.ready for an operator rejoining the voice room
type VoiceReadyPayload struct {
	GuestHandle string `json:"guestSocketId"`
	RoomURL     string `json:"roomUrl"`
	Token       string `json:"token"`
	Resumed     bool   `json:"resumed"`
}

// payload of voice.join.failed
type VoiceFailedPayload struct {
	Message string `json:"message"`
}

// payload of queue.update is []waitlist.Entry; aliased for readability
type QueueUpdatePayload = []waitlist.Entry
