package runner

import "time"

// Config holds configuration for the simulation runner.
type Config struct {
	// TickInterval paces the run; zero runs as fast as possible.
	TickInterval time.Duration
	// StepsPerTick is the number of simulation steps taken per interval.
	StepsPerTick int
	// StartPaused leaves the runner paused until Resume.
	StartPaused bool
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: 100 * time.Millisecond,
		StepsPerTick: 1,
	}
}
