package server

import (
	"fmt"
	"time"
)

// DefaultPollInterval is how often an idle read only worker reloads its
// collections.
const DefaultPollInterval = 100 * time.Millisecond

// Config holds the settings of one session worker.
type Config struct {
	// Addr is the standard endpoint, usually dialed by the broker.
	Addr string
	// LockAddr is bound while the worker is locked. Only one worker per
	// host can hold a given lock address at a time.
	LockAddr string
	// ReadOnly rejects mutating functions and makes the request loop poll
	// instead of blocking, reloading collections on every idle tick.
	ReadOnly     bool
	PollInterval time.Duration
	// Debug adds stack traces to internal error responses.
	Debug bool
}

func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:5560",
		LockAddr:     "127.0.0.1:5558",
		PollInterval: DefaultPollInterval,
	}
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.LockAddr == "" {
		return fmt.Errorf("lock address is required")
	}
	if c.Addr == c.LockAddr {
		return fmt.Errorf("lock address must differ from server address %s", c.Addr)
	}
	if c.ReadOnly && c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive for a read only server")
	}
	return nil
}
