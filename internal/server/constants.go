package server

import "time"

const (
	// Per-connection websocket message limit.
	RateLimitMessages = 20
	RateLimitWindow   = 10 * time.Second

	// Graceful shutdown allowance.
	ShutdownTimeout = 5 * time.Second
)
