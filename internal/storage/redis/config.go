package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// TTL settings. Zero disables expiry.
	GuestUserTTL   time.Duration // guest identities
	SessionDataTTL time.Duration // per-session responses and scores
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:            "redis://localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		GuestUserTTL:   24 * time.Hour,
		SessionDataTTL: 7 * 24 * time.Hour,
	}
}
