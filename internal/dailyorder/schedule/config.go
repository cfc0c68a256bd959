package schedule

import "time"

// Config controls the scheduled opener/closer loop.
type Config struct {
	TickInterval time.Duration
	OpenAt       string // "HH:MM", empty disables the opener
	CloseAt      string // "HH:MM", empty disables the closer
	Timezone     string
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Minute,
		Timezone:     "UTC",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.Timezone == "" {
		c.Timezone = defaults.Timezone
	}
	return c
}
