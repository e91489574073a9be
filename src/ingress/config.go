package ingress

import "os"

// Config holds connection settings for the NATS ingress.
type Config struct {
	URL     string // NATS server URL, default "nats://127.0.0.1:4222"
	Subject string // bus subject carrying internal messages, default "satori.events"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		URL:     "nats://127.0.0.1:4222",
		Subject: "satori.events",
	}
}

// ConfigFromEnv loads ingress configuration from environment variables.
// Falls back to defaults for any missing values.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if url := os.Getenv("SATORI_NATS_URL"); url != "" {
		cfg.URL = url
	}
	if subject := os.Getenv("SATORI_NATS_SUBJECT"); subject != "" {
		cfg.Subject = subject
	}
	return cfg
}
