package mcp

import (
	"io"
	"time"
)

// Config holds the session configuration shared by client and server peers.
type Config struct {
	// Identity advertised during the initialize handshake
	Name    string
	Version string

	// Database DSN for the optional session transcript store. Empty or
	// "skip" disables persistence.
	DatabaseURL string

	// Outbound request deadline armed per call
	RequestTimeout time.Duration

	// Blocking adapter wait bound
	CallTimeout time.Duration

	// Sampling tool-loop bounds
	ToolLoop ToolLoopConfig

	// Debug logging to LogWriter (default os.Stderr); never stdout
	Debug     bool
	LogWriter io.Writer
}

// ToolLoopConfig bounds the sampling engine's agentic loop.
type ToolLoopConfig struct {
	MaxIterations int
	Timeout       time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Name:           "mcpwire",
		Version:        "0.3.0",
		RequestTimeout: 30 * time.Second,
		CallTimeout:    30 * time.Second,
		ToolLoop:       DefaultToolLoopConfig(),
	}
}

// DefaultToolLoopConfig bounds the loop at ten iterations and five minutes
// of aggregate wall clock.
func DefaultToolLoopConfig() ToolLoopConfig {
	return ToolLoopConfig{
		MaxIterations: 10,
		Timeout:       5 * time.Minute,
	}
}
