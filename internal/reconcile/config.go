package reconcile

import "time"

// Config controls the periodic reconciliation loop.
type Config struct {
	Interval   time.Duration
	MirrorBack bool
}

func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	return c
}
