package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(id, role string, hub *Hub) *Client {
	return &Client{
		ID:   id,
		Role: role,
		hub:  hub,
		send: make(chan []byte, 256),
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestHubCreation(t *testing.T) {
	hub := NewHub()
	require.NotNil(t, hub)
	assert.NotNil(t, hub.Register)
	assert.NotNil(t, hub.Unregister)
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient("guest-conn-1", RoleGuest, hub)

	hub.Register <- client
	time.Sleep(100 * time.Millisecond)

	assert.True(t, hub.IsConnected("guest-conn-1"))
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient("guest-conn-1", RoleGuest, hub)

	hub.Register <- client
	time.Sleep(100 * time.Millisecond)

	hub.Unregister <- client
	time.Sleep(100 * time.Millisecond)

	assert.False(t, hub.IsConnected("guest-conn-1"))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubOperatorSupersede(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	first := newTestClient("mama-conn-1", RoleMama, hub)
	second := newTestClient("mama-conn-2", RoleMama, hub)

	hub.Register <- first
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "mama-conn-1", hub.OperatorID())

	hub.Register <- second
	time.Sleep(100 * time.Millisecond)

	// the newest console wins, the old one is closed
	assert.Equal(t, "mama-conn-2", hub.OperatorID())
	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())
}

func TestHubToOperatorDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	// no operator yet: dropping must not panic
	hub.ToOperator("queue.update", nil)

	operator := newTestClient("mama-conn-1", RoleMama, hub)
	hub.Register <- operator
	time.Sleep(100 * time.Millisecond)

	hub.ToOperator("queue.update", []string{})

	select {
	case received := <-operator.send:
		var msg Message
		require.NoError(t, json.Unmarshal(received, &msg))
		assert.Equal(t, "queue.update", msg.Type)
	case <-time.After(1 * time.Second):
		t.Error("operator should have received the event")
	}
}

func TestHubToGuestDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	guest := newTestClient("guest-conn-1", RoleGuest, hub)
	other := newTestClient("guest-conn-2", RoleGuest, hub)

	hub.Register <- guest
	hub.Register <- other
	time.Sleep(100 * time.Millisecond)

	hub.ToGuest("guest-conn-1", "queue.position", map[string]int{"position": 1, "size": 1})

	select {
	case received := <-guest.send:
		assert.Contains(t, string(received), "queue.position")
	case <-time.After(1 * time.Second):
		t.Error("guest should have received the event")
	}

	// the other guest gets nothing
	select {
	case <-other.send:
		t.Error("other guest should not have received the event")
	default:
		// expected
	}

	// unknown handle: dropped silently
	hub.ToGuest("no-such-conn", "queue.position", nil)
}

func TestHubRoomBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	member1 := newTestClient("conn-1", RoleGuest, hub)
	member2 := newTestClient("conn-2", RoleMama, hub)
	outsider := newTestClient("conn-3", RoleGuest, hub)

	hub.Register <- member1
	hub.Register <- member2
	hub.Register <- outsider
	time.Sleep(100 * time.Millisecond)

	hub.JoinRoom(member1, "room-7")
	hub.JoinRoom(member2, "room-7")
	hub.JoinRoom(outsider, "room-8")

	hub.ToRoom("room-7", "system_message", map[string]string{"text": "ようこそ"})

	for _, member := range []*Client{member1, member2} {
		select {
		case received := <-member.send:
			assert.Contains(t, string(received), "system_message")
		case <-time.After(1 * time.Second):
			t.Errorf("room member %s should have received the event", member.ID)
		}
	}

	select {
	case <-outsider.send:
		t.Error("outsider should not have received the event")
	default:
		// expected
	}
}

func TestHubJoinRoomMovesClient(t *testing.T) {
	hub := NewHub()

	client := newTestClient("conn-1", RoleGuest, hub)
	hub.clients[client.ID] = client

	hub.JoinRoom(client, "room-1")
	assert.Equal(t, "room-1", client.RoomTag())

	hub.JoinRoom(client, "room-2")
	assert.Equal(t, "room-2", client.RoomTag())

	// old room is empty and pruned
	hub.ToRoom("room-1", "system_message", nil)
	select {
	case <-client.send:
		t.Error("client should have left room-1")
	default:
		// expected
	}

	hub.ToRoom("room-2", "system_message", nil)
	select {
	case <-client.send:
		// expected
	case <-time.After(1 * time.Second):
		t.Error("client should receive events in room-2")
	}
}

func TestHubDispatch(t *testing.T) {
	hub := NewHub()

	handlerCalled := false
	var handlerMu sync.Mutex

	hub.RegisterHandler("test_command", func(hub *Hub, client *Client, msg *Message) error {
		handlerMu.Lock()
		handlerCalled = true
		handlerMu.Unlock()
		return nil
	})

	client := newTestClient("conn-1", RoleGuest, hub)

	msg, err := NewMessage("test_command", map[string]string{"key": "value"})
	require.NoError(t, err)

	hub.dispatch(client, msg)

	handlerMu.Lock()
	assert.True(t, handlerCalled, "handler should have been called")
	handlerMu.Unlock()
}

func TestHubDispatchUnknownType(t *testing.T) {
	hub := NewHub()

	client := newTestClient("conn-1", RoleGuest, hub)

	msg, err := NewMessage("no_such_command", nil)
	require.NoError(t, err)

	hub.dispatch(client, msg)

	// client gets an error message back
	select {
	case received := <-client.send:
		assert.Contains(t, string(received), "bad_request")
	default:
		t.Error("expected an error message for the unknown type")
	}
}

func TestHubConnectionLimitPerIP(t *testing.T) {
	hub := NewHub()

	for range maxConnectionsPerIP {
		ok, _ := hub.CanAcceptConnection("10.0.0.1")
		require.True(t, ok)
		hub.TrackIPConnection("10.0.0.1")
	}

	ok, reason := hub.CanAcceptConnection("10.0.0.1")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	// a different IP is unaffected
	ok, _ = hub.CanAcceptConnection("10.0.0.2")
	assert.True(t, ok)

	hub.UntrackIPConnection("10.0.0.1")
	ok, _ = hub.CanAcceptConnection("10.0.0.1")
	assert.True(t, ok)
}

func TestHubUnregisterClearsOperator(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	operator := newTestClient("mama-conn-1", RoleMama, hub)

	hub.Register <- operator
	time.Sleep(100 * time.Millisecond)
	drain(operator)

	hub.Unregister <- operator
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, hub.OperatorID())
}
