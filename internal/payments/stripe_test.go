package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPayload(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewClientRequiresSecretKey(t *testing.T) {
	assert.Nil(t, NewClient("", "whsec"))
	assert.False(t, NewClient("", "").Enabled())
	assert.True(t, NewClient("sk_test", "whsec").Enabled())
}

func TestCreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test_123", user)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "jpy", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "500", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "room-7", r.PostForm.Get("metadata[roomId]"))
		assert.Equal(t, "conn-1", r.PostForm.Get("metadata[socketId]"))
		assert.NotEmpty(t, r.PostForm.Get("metadata[correlationId]"))
		assert.Contains(t, r.PostForm.Get("success_url"), "https://front.example/return?tip=success")

		fmt.Fprint(w, `{"id":"cs_test_1","url":"https://checkout.stripe.com/pay/cs_test_1"}`)
	}))
	defer server.Close()

	client := NewClient("sk_test_123", "whsec_123")
	client.baseURL = server.URL

	link, err := client.CreateCheckoutSession(context.Background(), 500, "room-7", "conn-1", "https://front.example")
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", link.URL)
	assert.Equal(t, "cs_test_1", link.SessionID)
	assert.NotEmpty(t, link.CorrelationID)
}

func TestCreateCheckoutSessionRejectsInvalidAmount(t *testing.T) {
	client := NewClient("sk_test", "whsec")

	_, err := client.CreateCheckoutSession(context.Background(), 0, "room", "conn", "https://front.example")
	assert.Error(t, err)

	_, err = client.CreateCheckoutSession(context.Background(), -100, "room", "conn", "https://front.example")
	assert.Error(t, err)
}

func TestVerifyWebhook(t *testing.T) {
	client := NewClient("sk_test", "whsec_abc")

	now := time.Now()
	client.now = func() time.Time { return now }

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","amount_total":1000,"metadata":{"roomId":"room-7","socketId":"conn-1"}}}}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload("whsec_abc", now.Unix(), payload))

	event, err := client.VerifyWebhook(payload, header)
	require.NoError(t, err)

	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, int64(1000), event.Data.Object.AmountTotal)
	assert.Equal(t, "room-7", event.Data.Object.Metadata["roomId"])
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	client := NewClient("sk_test", "whsec_abc")

	now := time.Now()
	client.now = func() time.Time { return now }

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload("wrong_secret", now.Unix(), payload))

	_, err := client.VerifyWebhook(payload, header)
	assert.ErrorContains(t, err, "verification failed")
}

func TestVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	client := NewClient("sk_test", "whsec_abc")

	now := time.Now()
	client.now = func() time.Time { return now }

	stale := now.Add(-10 * time.Minute).Unix()
	payload := []byte(`{"id":"evt_1"}`)
	header := fmt.Sprintf("t=%d,v1=%s", stale, signPayload("whsec_abc", stale, payload))

	_, err := client.VerifyWebhook(payload, header)
	assert.ErrorContains(t, err, "tolerance")
}

func TestVerifyWebhookRejectsMalformedHeader(t *testing.T) {
	client := NewClient("sk_test", "whsec_abc")

	_, err := client.VerifyWebhook([]byte(`{}`), "not-a-signature")
	assert.Error(t, err)

	_, err = client.VerifyWebhook([]byte(`{}`), "t=abc,v1=00")
	assert.Error(t, err)
}
