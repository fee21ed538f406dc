package websocket

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Miyuslav/Snack-no-trace/internal/lounge"
)

// wires every command type to its lounge operation and hooks connection
// lifecycle into the orchestrator. The operator console is placed in its
// fixed room on connect so room broadcasts reach it.
func RegisterHandlers(hub *Hub, orch *lounge.Orchestrator, operatorRoomTag string) {
	hub.RegisterHandler(CmdGuestRegister, GuestRegisterHandler(orch))
	hub.RegisterHandler(CmdGuestLeave, GuestLeaveHandler(orch))
	hub.RegisterHandler(CmdGuestMessage, GuestMessageHandler(orch))
	hub.RegisterHandler(CmdGuestTip, GuestTipHandler(orch))
	hub.RegisterHandler(CmdJoinRoom, JoinRoomHandler(orch))
	hub.RegisterHandler(CmdMamaAccept, AcceptGuestHandler(orch))
	hub.RegisterHandler(CmdMamaEnd, EndSessionHandler(orch))
	hub.RegisterHandler(CmdMamaMessage, MamaMessageHandler(orch))
	hub.RegisterHandler(CmdVoiceJoin, VoiceJoinHandler(orch))
	hub.RegisterHandler(TypePing, PingHandler())

	hub.OnClientRegistered(func(client *Client) {
		if client.IsOperator() {
			hub.JoinRoom(client, operatorRoomTag)
			orch.OperatorConnected()
			return
		}

		orch.Connect(client.ID)
	})

	hub.OnClientDisconnect(func(client *Client) {
		if client.IsOperator() {
			return
		}

		orch.HandleDisconnect(client.ID)
	})
}

// handles guest.register messages
func GuestRegisterHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		var payload RegisterPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError("validation_error", "failed to parse registration", err.Error())
			return err
		}

		if payload.GuestID == "" {
			client.SendError("bad_request", "guestId is required", "")
			return nil
		}

		if payload.RoomID != "" {
			hub.JoinRoom(client, payload.RoomID)
		}

		orch.Register(client.ID, payload.GuestID, payload.Mood, payload.Mode, payload.RoomID)
		return nil
	}
}

// handles guest.leave messages
func GuestLeaveHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		orch.Leave(client.ID)
		return nil
	}
}

// handles guest.message chat messages
func GuestMessageHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.checkChatRateLimit() {
			client.SendError("too_many_requests", "too many chat messages, slow down", "")
			return ErrRateLimitExceeded
		}

		text, err := chatText(msg)
		if err != nil {
			client.SendError("validation_error", "failed to parse chat message", err.Error())
			return err
		}

		if text == "" {
			return nil
		}

		orch.GuestMessage(client.ID, text)
		return nil
	}
}

// handles guest.tip intent announcements
func GuestTipHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		var payload TipPayload
		// a missing amount still signals intent
		msg.UnmarshalPayload(&payload) //nolint:errcheck,gosec // G104: amount is optional

		orch.TipIntent(client.ID, payload.Amount)
		return nil
	}
}

// handles join_room messages. The room may arrive as an object or as a bare
// string depending on the client version.
func JoinRoomHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		roomTag := parseRoomTag(msg)
		if roomTag == "" {
			client.SendError("bad_request", "roomId is required", "")
			return nil
		}

		hub.JoinRoom(client, roomTag)

		// the operator console joins its fixed room, it never resumes a
		// guest session through this path
		if !client.IsOperator() {
			orch.JoinRoom(client.ID, roomTag)
		}

		return nil
	}
}

// handles mama.acceptGuest commands
func AcceptGuestHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.IsOperator() {
			client.SendError("forbidden", "only the operator can accept guests", "")
			return ErrOperatorOnly
		}

		var payload AcceptGuestPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError("validation_error", "failed to parse accept command", err.Error())
			return err
		}

		if payload.GuestSocketID == "" {
			client.SendError("bad_request", "guestSocketId is required", "")
			return nil
		}

		orch.Accept(context.Background(), payload.GuestSocketID)
		return nil
	}
}

// handles mama.endSession commands
func EndSessionHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.IsOperator() {
			client.SendError("forbidden", "only the operator can end the session", "")
			return ErrOperatorOnly
		}

		orch.End(lounge.ReasonMamaEnded)
		return nil
	}
}

// handles mama.message chat messages
func MamaMessageHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.IsOperator() {
			client.SendError("forbidden", "only the operator can use this channel", "")
			return ErrOperatorOnly
		}

		text, err := chatText(msg)
		if err != nil {
			client.SendError("validation_error", "failed to parse chat message", err.Error())
			return err
		}

		if text == "" {
			return nil
		}

		orch.OperatorMessage(text)
		return nil
	}
}

// handles voice.join.request commands from the operator console
func VoiceJoinHandler(orch *lounge.Orchestrator) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.IsOperator() {
			client.SendError("forbidden", "only the operator can request voice credentials", "")
			return ErrOperatorOnly
		}

		orch.OperatorVoiceJoin()
		return nil
	}
}

// handles ping messages
func PingHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		pongMsg, err := NewMessage(TypePong, nil)
		if err != nil {
			return err
		}

		return client.Send(pongMsg)
	}
}

// extracts and bounds-checks the text of a chat payload
func chatText(msg *Message) (string, error) {
	var payload ChatTextPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return "", err
	}

	text := strings.TrimSpace(payload.Text)
	if len(text) > maxChatMessageSize {
		return "", ErrMessageTooLarge
	}

	return text, nil
}

// accepts both {"roomId": "..."} and a bare JSON string
func parseRoomTag(msg *Message) string {
	var payload JoinRoomPayload
	if err := msg.UnmarshalPayload(&payload); err == nil && payload.RoomID != "" {
		return payload.RoomID
	}

	var plain string
	if err := json.Unmarshal(msg.Payload, &plain); err == nil {
		return plain
	}

	return ""
}
