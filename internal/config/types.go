package config

import "time"

type Config struct {
	Port           string
	Environment    string
	FrontendOrigin string

	// stripe credentials; tipping is disabled when the secret key is empty
	StripeSecretKey     string
	StripeWebhookSecret string

	// daily credentials; voice sessions degrade to text when unset
	DailyAPIKey  string
	DailyRoomURL string

	// room tag the operator console joins on connect
	MamaRoomID string

	Durations Durations
}

// the timing knobs of the session lifecycle
type Durations struct {
	// hard cap on a session
	SessionMax time.Duration

	// how long before expiry the warning fires
	WarningLead time.Duration

	// reconnect window for a non-paying active guest
	DisconnectGrace time.Duration

	// reconnect window for an active guest with a tip in flight
	PayingGrace time.Duration
}
