package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	meetingTokensURL = "https://api.daily.co/v1/meeting-tokens"

	// issued tokens stay valid this long
	tokenLifetime = 30 * time.Minute
)

// shared HTTP client for Daily API calls
var dailyHTTPClient = &http.Client{
	Timeout: 15 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// issues meeting tokens for the configured Daily room
type Client struct {
	apiKey     string
	roomURL    string
	baseURL    string
	httpClient *http.Client
}

// a room URL plus the token that admits one participant to it
type MeetingToken struct {
	RoomURL string `json:"roomUrl"`
	Token   string `json:"token"`
}

type tokenRequest struct {
	Properties tokenProperties `json:"properties"`
}

type tokenProperties struct {
	RoomName string `json:"room_name"`
	UserName string `json:"user_name"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// returns a client for the given credentials, or nil when voice is not
// configured (sessions then run in text mode only)
func NewClient(apiKey, roomURL string) *Client {
	if apiKey == "" || roomURL == "" {
		return nil
	}

	return &Client{
		apiKey:     apiKey,
		roomURL:    roomURL,
		baseURL:    meetingTokensURL,
		httpClient: dailyHTTPClient,
	}
}

// reports whether token issuance is available
func (c *Client) Enabled() bool {
	return c != nil
}

// requests a meeting token for the configured room. The operator connects
// as owner, guests do not.
func (c *Client) CreateMeetingToken(ctx context.Context, userName string, isOwner bool) (*MeetingToken, error) {
	if c == nil {
		return nil, fmt.Errorf("voice is not configured")
	}

	if userName == "" {
		userName = "guest"
	}

	roomName, err := roomNameFromURL(c.roomURL)
	if err != nil {
		return nil, err
	}

	reqBody := tokenRequest{
		Properties: tokenProperties{
			RoomName: roomName,
			UserName: userName,
			IsOwner:  isOwner,
			Exp:      time.Now().Add(tokenLifetime).Unix(),
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daily token request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body cleanup

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daily token error: status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.Token == "" {
		return nil, fmt.Errorf("daily token response contained no token")
	}

	return &MeetingToken{
		RoomURL: c.roomURL,
		Token:   tokenResp.Token,
	}, nil
}

// extracts the room name from a Daily room URL
func roomNameFromURL(roomURL string) (string, error) {
	u, err := url.Parse(roomURL)
	if err != nil {
		return "", fmt.Errorf("invalid daily room URL %q: %w", roomURL, err)
	}

	name := strings.TrimLeft(u.Path, "/")
	if name == "" {
		return "", fmt.Errorf("daily room URL %q has no room name", roomURL)
	}

	return name, nil
}
