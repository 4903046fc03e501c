package invoker

import (
	"fmt"
	"time"
)

// ConfigError indicates a skill cannot be invoked because it has no endpoint.
// Raised before any network activity.
type ConfigError struct {
	Skill string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("skill %s has no endpoint configured", e.Skill)
}

// TimeoutError indicates the invocation exceeded the skill's configured timeout.
type TimeoutError struct {
	Skill   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("skill %s timed out after %dms", e.Skill, e.Timeout.Milliseconds())
}

// RemoteError indicates the skill endpoint answered with a non-2xx status.
// Message carries the remote's own message field when one was present.
type RemoteError struct {
	Skill      string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("skill %s returned error: %d - %s", e.Skill, e.StatusCode, e.Message)
}

// TransportError wraps DNS, connection, and protocol failures below HTTP.
type TransportError struct {
	Skill string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to invoke skill %s: %v", e.Skill, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
