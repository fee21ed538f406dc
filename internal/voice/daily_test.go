package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	assert.Nil(t, NewClient("", "https://example.daily.co/snack"))
	assert.Nil(t, NewClient("key", ""))
	assert.False(t, NewClient("", "").Enabled())
	assert.True(t, NewClient("key", "https://example.daily.co/snack").Enabled())
}

func TestCreateMeetingToken(t *testing.T) {
	var gotAuth string
	var gotReq tokenRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(tokenResponse{Token: "tok-123"}) //nolint:errcheck // test server
	}))
	defer server.Close()

	client := NewClient("secret-key", "https://example.daily.co/snack-room")
	client.baseURL = server.URL

	token, err := client.CreateMeetingToken(context.Background(), "mama", true)
	require.NoError(t, err)

	assert.Equal(t, "tok-123", token.Token)
	assert.Equal(t, "https://example.daily.co/snack-room", token.RoomURL)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "snack-room", gotReq.Properties.RoomName)
	assert.Equal(t, "mama", gotReq.Properties.UserName)
	assert.True(t, gotReq.Properties.IsOwner)
	assert.Positive(t, gotReq.Properties.Exp)
}

func TestCreateMeetingTokenDefaultsUserName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "guest", req.Properties.UserName)
		assert.False(t, req.Properties.IsOwner)

		json.NewEncoder(w).Encode(tokenResponse{Token: "tok-guest"}) //nolint:errcheck // test server
	}))
	defer server.Close()

	client := NewClient("key", "https://example.daily.co/snack-room")
	client.baseURL = server.URL

	token, err := client.CreateMeetingToken(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, "tok-guest", token.Token)
}

func TestCreateMeetingTokenAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid-room"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient("key", "https://example.daily.co/snack-room")
	client.baseURL = server.URL

	_, err := client.CreateMeetingToken(context.Background(), "guest", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestRoomNameFromURL(t *testing.T) {
	name, err := roomNameFromURL("https://example.daily.co/snack-room")
	require.NoError(t, err)
	assert.Equal(t, "snack-room", name)

	_, err = roomNameFromURL("https://example.daily.co/")
	assert.Error(t, err)
}
