package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestClientRoles(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		isOperator bool
	}{
		{
			name:       "mama is the operator",
			role:       RoleMama,
			isOperator: true,
		},
		{
			name:       "guest is not",
			role:       RoleGuest,
			isOperator: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{
				ID:   "test-client",
				Role: tt.role,
				send: make(chan []byte, 256),
			}

			assert.Equal(t, tt.isOperator, client.IsOperator())
		})
	}
}

func TestClientSendError(t *testing.T) {
	client := &Client{
		ID:   "test-client",
		Role: RoleGuest,
		send: make(chan []byte, 256),
	}

	client.SendError("TEST_ERROR", "Test error message", "Additional details")

	select {
	case msg := <-client.send:
		assert.Contains(t, string(msg), "TEST_ERROR")
		assert.Contains(t, string(msg), "Test error message")
		assert.Contains(t, string(msg), "error")
	default:
		t.Error("expected error message to be sent")
	}
}

func TestClientSendMessage(t *testing.T) {
	client := &Client{
		ID:   "test-client",
		Role: RoleGuest,
		send: make(chan []byte, 256),
	}

	msg, err := NewMessage("queue.position", map[string]int{"position": 1, "size": 3})
	assert.NoError(t, err)

	err = client.Send(msg)
	assert.NoError(t, err)

	select {
	case received := <-client.send:
		assert.Contains(t, string(received), "queue.position")
		assert.Contains(t, string(received), "position")
	default:
		t.Error("expected message to be sent")
	}
}

func TestClientSendMessageToClosedChannel(t *testing.T) {
	client := &Client{
		ID:   "test-client",
		Role: RoleGuest,
		send: make(chan []byte, 256),
	}

	close(client.send)

	msg, err := NewMessage(TypePong, nil)
	assert.NoError(t, err)

	// sending to closed channel should not panic
	err = client.Send(msg)
	assert.Error(t, err)
}

func TestClientSendAfterClose(t *testing.T) {
	client := &Client{
		ID:   "test-client",
		Role: RoleGuest,
		send: make(chan []byte, 256),
	}

	client.Close()
	assert.True(t, client.IsClosed())

	msg, err := NewMessage(TypePong, nil)
	assert.NoError(t, err)

	err = client.Send(msg)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	client := &Client{
		ID:   "test-client",
		Role: RoleGuest,
		send: make(chan []byte, 256),
	}

	client.Close()
	client.Close()

	assert.True(t, client.IsClosed())
}

func TestClientChatRateLimit(t *testing.T) {
	client := &Client{
		ID:          "test-client",
		Role:        RoleGuest,
		send:        make(chan []byte, 256),
		chatLimiter: rate.NewLimiter(rate.Limit(chatMessagesPerSecond), chatMessageBurst),
	}

	// the burst is allowed
	for i := range chatMessageBurst {
		assert.True(t, client.checkChatRateLimit(), "message %d within burst should pass", i)
	}

	// the next one is throttled
	assert.False(t, client.checkChatRateLimit())
}
