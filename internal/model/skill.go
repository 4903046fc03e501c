package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeoutMs is the invocation timeout applied when a skill does not
// configure its own.
const DefaultTimeoutMs = 10_000

// AuthType tags the authentication scheme in a skill's AuthConfig.
type AuthType string

const (
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api_key"
)

// AuthConfig describes how outbound calls to a skill authenticate.
// It stores the NAME of the environment variable holding the secret,
// never the secret itself.
type AuthConfig struct {
	Type     AuthType `json:"type"`
	TokenEnv string   `json:"token_env,omitempty"` // bearer: env var holding the token
	KeyEnv   string   `json:"key_env,omitempty"`   // api_key: env var holding the key
}

// Skill is a registered external capability invocable by the router.
type Skill struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Description string      `json:"description"`
	Endpoint    *string     `json:"endpoint,omitempty"` // nil means non-invocable
	TimeoutMs   int         `json:"timeout_ms"`
	AuthConfig  *AuthConfig `json:"auth_config,omitempty"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Timeout returns the configured invocation timeout as a duration,
// falling back to DefaultTimeoutMs when unset or non-positive.
func (s Skill) Timeout() time.Duration {
	ms := s.TimeoutMs
	if ms <= 0 {
		ms = DefaultTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// MaxSkillNameLen bounds skill names; they are matched as substrings against
// user input, so unbounded names would make classification cost caller-controlled.
const MaxSkillNameLen = 200

// RegisterSkillRequest is the request body for POST /v1/skills.
type RegisterSkillRequest struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Description string      `json:"description,omitempty"`
	Endpoint    *string     `json:"endpoint,omitempty"`
	TimeoutMs   *int        `json:"timeout_ms,omitempty"`
	AuthConfig  *AuthConfig `json:"auth_config,omitempty"`
}

// Validate checks required fields and formats on a registration request.
func (r RegisterSkillRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > MaxSkillNameLen {
		return fmt.Errorf("name must be at most %d characters", MaxSkillNameLen)
	}
	if strings.TrimSpace(r.Version) == "" {
		return fmt.Errorf("version is required")
	}
	if r.Endpoint != nil {
		if err := validateEndpoint(*r.Endpoint); err != nil {
			return err
		}
	}
	if r.TimeoutMs != nil && *r.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be positive")
	}
	if r.AuthConfig != nil {
		if err := r.AuthConfig.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSkillRequest is the request body for PUT /v1/skills/{id}.
// Partial patch semantics: nil fields retain their prior values.
type UpdateSkillRequest struct {
	Version     *string     `json:"version,omitempty"`
	Description *string     `json:"description,omitempty"`
	Endpoint    *string     `json:"endpoint,omitempty"`
	TimeoutMs   *int        `json:"timeout_ms,omitempty"`
	AuthConfig  *AuthConfig `json:"auth_config,omitempty"`
	IsActive    *bool       `json:"is_active,omitempty"`
}

// Validate checks formats on the fields present in a patch.
func (r UpdateSkillRequest) Validate() error {
	if r.Version != nil && strings.TrimSpace(*r.Version) == "" {
		return fmt.Errorf("version must not be empty")
	}
	if r.Endpoint != nil {
		if err := validateEndpoint(*r.Endpoint); err != nil {
			return err
		}
	}
	if r.TimeoutMs != nil && *r.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be positive")
	}
	if r.AuthConfig != nil {
		if err := r.AuthConfig.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that an auth config names a scheme and its env var.
func (a AuthConfig) Validate() error {
	switch a.Type {
	case AuthBearer:
		if a.TokenEnv == "" {
			return fmt.Errorf("auth_config.token_env is required for bearer auth")
		}
	case AuthAPIKey:
		if a.KeyEnv == "" {
			return fmt.Errorf("auth_config.key_env is required for api_key auth")
		}
	default:
		return fmt.Errorf("auth_config.type must be %q or %q", AuthBearer, AuthAPIKey)
	}
	return nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("endpoint is not a valid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("endpoint must use http or https scheme (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint must include a host")
	}
	return nil
}
