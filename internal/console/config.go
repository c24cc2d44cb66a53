package console

import "time"

// Config defines console session reliability settings.
type Config struct {
	// MaxAttempts bounds dial attempts per acquisition. Zero means one.
	MaxAttempts  int
	ReplyTimeout time.Duration
	Retry        RetryPolicy
	// Probe is the diagnostic script sent once when the session is created.
	Probe string
}

// DefaultConfig mirrors the historical bridge: three attempts, five
// seconds apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		ReplyTimeout: 10 * time.Second,
		Retry: RetryPolicy{
			Delay:      5 * time.Second,
			Multiplier: 1,
		},
		Probe: "/c game.print('rconbridge connected')",
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = def.ReplyTimeout
	}
	if c.Retry == (RetryPolicy{}) {
		c.Retry = def.Retry
	}
	if c.Probe == "" {
		c.Probe = def.Probe
	}
	return c
}
