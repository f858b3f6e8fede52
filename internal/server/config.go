package server

import "time"

// Config holds configuration for the streaming server.
type Config struct {
	Addr string
	// ClientBuffer is the per-client outbound message queue. A client whose
	// queue is full misses messages instead of stalling the hub.
	ClientBuffer int
	// Replay is the number of recent steps sent to a client on connect.
	Replay       int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ClientBuffer: 64,
		Replay:       100,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = d.ClientBuffer
	}
	if c.Replay < 0 {
		c.Replay = 0
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	return c
}
