package transport

import (
	"fmt"
	"time"
)

// Config represents NATS transport configuration
type Config struct {
	URL            string        `mapstructure:"url"`
	Name           string        `mapstructure:"name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	FlushTimeout   time.Duration `mapstructure:"flush_timeout"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

// DefaultConfig returns transport defaults for a local broker.
func DefaultConfig() *Config {
	return &Config{
		URL:            "nats://127.0.0.1:4222",
		Name:           "fleetcmd",
		ConnectTimeout: 5 * time.Second,
		FlushTimeout:   3 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("transport url is required")
	}
	return nil
}
