package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultSessionMax      = 10 * time.Minute
	defaultWarningLead     = time.Minute
	defaultDisconnectGrace = 10 * time.Second
	defaultPayingGrace     = 2 * time.Minute
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	cfg := &Config{
		Port:                os.Getenv("PORT"),
		Environment:         os.Getenv("ENVIRONMENT"),
		FrontendOrigin:      strings.TrimSuffix(os.Getenv("FRONTEND_ORIGIN"), "/"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		DailyAPIKey:         os.Getenv("DAILY_API_KEY"),
		DailyRoomURL:        os.Getenv("DAILY_ROOM_URL"),
		MamaRoomID:          os.Getenv("MAMA_ROOM_ID"),
	}

	if cfg.Port == "" {
		cfg.Port = "4000"
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.MamaRoomID == "" {
		cfg.MamaRoomID = "room_mama_fixed"
	}

	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	durations, err := loadDurations()
	if err != nil {
		return nil, err
	}

	cfg.Durations = durations

	return cfg, nil
}

func loadDurations() (Durations, error) {
	d := Durations{
		SessionMax:      defaultSessionMax,
		WarningLead:     defaultWarningLead,
		DisconnectGrace: defaultDisconnectGrace,
		PayingGrace:     defaultPayingGrace,
	}

	overrides := []struct {
		env    string
		target *time.Duration
	}{
		{"SESSION_MAX", &d.SessionMax},
		{"WARNING_LEAD", &d.WarningLead},
		{"DISCONNECT_GRACE", &d.DisconnectGrace},
		{"PAYING_GRACE", &d.PayingGrace},
	}

	for _, o := range overrides {
		raw := os.Getenv(o.env)
		if raw == "" {
			continue
		}

		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return d, fmt.Errorf("invalid %s duration %q: %w", o.env, raw, err)
		}

		if parsed <= 0 {
			return d, fmt.Errorf("%s must be positive, got %q", o.env, raw)
		}

		*o.target = parsed
	}

	if d.WarningLead >= d.SessionMax {
		return d, fmt.Errorf("WARNING_LEAD (%s) must be shorter than SESSION_MAX (%s)", d.WarningLead, d.SessionMax)
	}

	return d, nil
}
