// Package ratelimit provides a pluggable rate limiting interface.
//
// The default deployment uses an in-memory token bucket (MemoryLimiter),
// which is enough for a single instance fronting anonymous routing traffic.
// Multi-instance deployments can substitute a shared implementation behind
// the same Limiter interface.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. The key is opaque;
	// callers construct it (e.g. an IP or "user:<uuid>"). An error signals a
	// limiter malfunction and callers should fail open rather than block
	// traffic.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
