package websocket

import (
	"encoding/json"
	"time"
)

// builds a message with a marshaled payload; a nil payload is allowed
func NewMessage(messageType string, payload any) (*Message, error) {
	msg := &Message{
		Type:      messageType,
		Timestamp: time.Now(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		msg.Payload = raw
	}

	return msg, nil
}

// decodes the raw payload into the given value
func (m *Message) UnmarshalPayload(v any) error {
	if len(m.Payload) == 0 {
		return ErrInvalidMessage
	}

	return json.Unmarshal(m.Payload, v)
}
