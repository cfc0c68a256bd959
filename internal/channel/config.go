package channel

import "time"

// Config controls the event channel connection.
type Config struct {
	Enabled   bool
	Endpoint  string
	AppID     string
	AppSecret string

	// ForwardPort is the local HTTP port events are forwarded to.
	ForwardPort int

	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration // delay before the first retry
	RetryDelay        time.Duration // delay between subsequent retries
	SendTimeout       time.Duration
	QueueSize         int
}

func DefaultConfig() Config {
	return Config{
		ForwardPort:       8080,
		HeartbeatInterval: 30 * time.Second,
		ReconnectDelay:    2 * time.Second,
		RetryDelay:        5 * time.Second,
		SendTimeout:       10 * time.Second,
		QueueSize:         256,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ForwardPort <= 0 {
		c.ForwardPort = defaults.ForwardPort
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaults.ReconnectDelay
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaults.RetryDelay
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaults.SendTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaults.QueueSize
	}
	return c
}
