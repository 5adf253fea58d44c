package domain

import "time"

// Compiled limits and timeouts. Where configuration exposes the same knob,
// these are the defaults.
const (
	// Endpoint limits
	MaxNameLength = 255 // Max length in bytes of an endpoint name

	// Admin API limits
	MaxPayloadBytes       = 1 << 20 // Max message body accepted over the admin API
	DefaultReceiveTimeout = 30 * time.Second
	MaxListEndpoints      = 1000

	// Service ports
	DefaultHTTPPort = 7070
	DefaultGRPCPort = 7071

	// Graceful shutdown
	ShutdownDrainDelay     = 500 * time.Millisecond // Let health checks observe 503 before draining
	ShutdownCleanupTimeout = 5 * time.Second
	ShutdownHTTPTimeout    = 10 * time.Second
	ShutdownGRPCTimeout    = 10 * time.Second
	ShutdownOTELTimeout    = 5 * time.Second
)
