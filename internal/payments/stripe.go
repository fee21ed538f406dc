package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	checkoutSessionsURL = "https://api.stripe.com/v1/checkout/sessions"

	// webhook signatures older than this are rejected (replay protection)
	signatureTolerance = 5 * time.Minute

	// the only webhook event type acted upon
	EventCheckoutCompleted = "checkout.session.completed"
)

// shared HTTP client for Stripe API calls
var stripeHTTPClient = &http.Client{
	Timeout: 20 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// creates checkout sessions and verifies webhook deliveries
type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
	now           func() time.Time
}

// a parsed, signature-verified webhook delivery
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// the subset of a Stripe checkout session this server reads
type CheckoutSession struct {
	ID          string            `json:"id"`
	AmountTotal int64             `json:"amount_total"`
	Metadata    map[string]string `json:"metadata"`
}

// the redirect URL handed back to the tipping guest
type CheckoutLink struct {
	URL           string
	SessionID     string
	CorrelationID string
}

// returns a client, or nil when tipping is not configured
func NewClient(secretKey, webhookSecret string) *Client {
	if secretKey == "" {
		return nil
	}

	return &Client{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       checkoutSessionsURL,
		httpClient:    stripeHTTPClient,
		now:           time.Now,
	}
}

// reports whether checkout creation is available
func (c *Client) Enabled() bool {
	return c != nil
}

// creates a one-off JPY checkout session for a tip. The room tag and the
// guest's connection handle travel in the session metadata so the webhook
// can route the confirmation back to the right participants.
func (c *Client) CreateCheckoutSession(ctx context.Context, amountYen int64, roomTag, guestHandle, returnOrigin string) (*CheckoutLink, error) {
	if c == nil {
		return nil, fmt.Errorf("tipping is not configured")
	}

	if amountYen <= 0 {
		return nil, fmt.Errorf("invalid tip amount %d", amountYen)
	}

	correlationID := uuid.NewString()

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "jpy")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amountYen, 10))
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("Tip ¥%d", amountYen))
	form.Set("success_url", fmt.Sprintf("%s/return?tip=success&roomId=%s&session_id={CHECKOUT_SESSION_ID}", returnOrigin, url.QueryEscape(roomTag)))
	form.Set("cancel_url", fmt.Sprintf("%s/return?tip=cancel&roomId=%s", returnOrigin, url.QueryEscape(roomTag)))
	form.Set("metadata[roomId]", roomTag)
	form.Set("metadata[socketId]", guestHandle)
	form.Set("metadata[correlationId]", correlationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkout request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body cleanup

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checkout error: status %d: %s", resp.StatusCode, string(body))
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}

	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to parse checkout response: %w", err)
	}

	if session.URL == "" {
		return nil, fmt.Errorf("checkout response contained no redirect URL")
	}

	return &CheckoutLink{
		URL:           session.URL,
		SessionID:     session.ID,
		CorrelationID: correlationID,
	}, nil
}

// checks the Stripe-Signature header against the raw payload and parses the
// event. The header carries a timestamp and one or more v1 signatures, each
// an HMAC-SHA256 of "<timestamp>.<payload>" keyed by the webhook secret.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	if c == nil || c.webhookSecret == "" {
		return nil, fmt.Errorf("webhook secret is not configured")
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if c.now().Sub(time.Unix(timestamp, 0)) > signatureTolerance {
		return nil, fmt.Errorf("webhook signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload) //nolint:errcheck // hash writes cannot fail
	expected := mac.Sum(nil)

	verified := false

	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}

		if hmac.Equal(decoded, expected) {
			verified = true
			break
		}
	}

	if !verified {
		return nil, fmt.Errorf("webhook signature verification failed")
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook event: %w", err)
	}

	return &event, nil
}

// splits a "t=<unix>,v1=<hex>[,v1=<hex>...]" signature header
func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}

		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid signature timestamp %q", value)
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("malformed signature header")
	}

	return timestamp, signatures, nil
}
