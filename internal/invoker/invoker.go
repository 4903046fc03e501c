// Package invoker performs the outbound HTTP call to a skill endpoint.
//
// Credentials are never stored with a skill. A skill's auth config names
// environment variables, and the invoker resolves them at call time, so
// rotating a credential never touches the database.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/ashita-ai/annai/internal/model"
)

// maxResponseBytes caps how much of a skill response is read into memory.
const maxResponseBytes = 4 << 20 // 4 MB

// Request is the payload sent to a skill endpoint.
type Request struct {
	Skill   string         `json:"skill"`
	Version string         `json:"version"`
	Input   string         `json:"input"`
	Context map[string]any `json:"context"`
}

// Invoker calls remote skill endpoints over HTTP.
type Invoker struct {
	httpClient *http.Client
	getenv     func(string) string
	logger     *slog.Logger
}

// New creates an Invoker. A nil client falls back to a default client with no
// global timeout; deadlines come from each skill's configured timeout. A nil
// getenv falls back to os.Getenv.
func New(client *http.Client, getenv func(string) string, logger *slog.Logger) *Invoker {
	if client == nil {
		client = &http.Client{}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{httpClient: client, getenv: getenv, logger: logger}
}

// Invoke POSTs the routing payload to the skill's endpoint and returns the
// decoded JSON response. Failures are typed: *ConfigError for a skill with no
// endpoint, *TimeoutError when the skill's deadline elapses, *RemoteError for
// a non-2xx answer, *TransportError for everything below HTTP.
func (i *Invoker) Invoke(ctx context.Context, skill model.Skill, input string, reqCtx map[string]any) (map[string]any, error) {
	if skill.Endpoint == nil || *skill.Endpoint == "" {
		return nil, &ConfigError{Skill: skill.Name}
	}

	timeout := skill.Timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if reqCtx == nil {
		reqCtx = map[string]any{}
	}
	body, err := json.Marshal(Request{
		Skill:   skill.Name,
		Version: skill.Version,
		Input:   input,
		Context: reqCtx,
	})
	if err != nil {
		return nil, &TransportError{Skill: skill.Name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *skill.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Skill: skill.Name, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	i.applyAuth(req, skill)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Skill: skill.Name, Timeout: timeout}
		}
		return nil, &TransportError{Skill: skill.Name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Skill: skill.Name, Timeout: timeout}
		}
		return nil, &TransportError{Skill: skill.Name, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{
			Skill:      skill.Name,
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(raw, resp.Status),
		}
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &TransportError{Skill: skill.Name, Err: fmt.Errorf("decode response: %w", err)}
	}
	return result, nil
}

// applyAuth attaches credentials per the skill's auth config. A missing or
// empty environment variable downgrades to an unauthenticated call with a
// warning rather than failing the invocation.
func (i *Invoker) applyAuth(req *http.Request, skill model.Skill) {
	cfg := skill.AuthConfig
	if cfg == nil {
		return
	}
	switch cfg.Type {
	case model.AuthBearer:
		token := i.getenv(cfg.TokenEnv)
		if token == "" {
			i.logger.Warn("skill auth token env var not set, invoking unauthenticated",
				"skill", skill.Name, "env_var", cfg.TokenEnv)
			return
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case model.AuthAPIKey:
		key := i.getenv(cfg.KeyEnv)
		if key == "" {
			i.logger.Warn("skill auth key env var not set, invoking unauthenticated",
				"skill", skill.Name, "env_var", cfg.KeyEnv)
			return
		}
		req.Header.Set("X-API-Key", key)
	}
}

// remoteMessage extracts the remote's own "message" (or "error") field when the
// error body is JSON, falling back to the HTTP status line.
func remoteMessage(raw []byte, status string) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return status
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}
