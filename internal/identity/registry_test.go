package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryBindResolve(t *testing.T) {
	r := NewRegistry()

	r.Bind("conn-1", "guest-a")

	assert.Equal(t, "guest-a", r.Resolve("conn-1"))
	assert.Equal(t, "conn-1", r.LatestHandle("guest-a"))
}

func TestRegistryLatestWins(t *testing.T) {
	r := NewRegistry()

	// same guest reconnects under a new handle
	r.Bind("conn-1", "guest-a")
	r.Bind("conn-2", "guest-a")

	assert.Equal(t, "conn-2", r.LatestHandle("guest-a"))
	assert.True(t, r.IsLatest("conn-2"))
	assert.False(t, r.IsLatest("conn-1"))

	// the old handle still resolves until it is unbound
	assert.Equal(t, "guest-a", r.Resolve("conn-1"))
}

func TestRegistryUnbindStaleHandleKeepsLatest(t *testing.T) {
	r := NewRegistry()

	r.Bind("conn-1", "guest-a")
	r.Bind("conn-2", "guest-a")

	// unbinding the superseded handle must not disturb the current one
	r.Unbind("conn-1")

	assert.Empty(t, r.Resolve("conn-1"))
	assert.Equal(t, "conn-2", r.LatestHandle("guest-a"))
}

func TestRegistryUnbindLatestClearsReverseEdge(t *testing.T) {
	r := NewRegistry()

	r.Bind("conn-1", "guest-a")
	r.Unbind("conn-1")

	assert.Empty(t, r.Resolve("conn-1"))
	assert.Empty(t, r.LatestHandle("guest-a"))

	// the durable ID is still bindable by a future connection
	r.Bind("conn-2", "guest-a")
	assert.Equal(t, "conn-2", r.LatestHandle("guest-a"))
}

func TestRegistryUnbindUnknownHandle(t *testing.T) {
	r := NewRegistry()

	// must be a no-op
	r.Unbind("never-seen")

	assert.Empty(t, r.Resolve("never-seen"))
}
