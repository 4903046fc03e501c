package model

import (
	"time"

	"github.com/google/uuid"
)

// RouteStatus is the terminal state of a routing attempt.
type RouteStatus string

const (
	RoutePending RouteStatus = "pending"
	RouteSuccess RouteStatus = "success"
	RouteFailed  RouteStatus = "failed"
	RouteTimeout RouteStatus = "timeout"
)

// RouteAttempt is one persisted record of a routing decision and its outcome.
// Rows are append-only: created exactly once per request, never mutated.
type RouteAttempt struct {
	ID              int64          `json:"id"`
	RequestID       string         `json:"request_id"`
	UserID          *uuid.UUID     `json:"user_id,omitempty"` // nil for anonymous routing
	InputText       string         `json:"input_text"`
	Context         map[string]any `json:"context"`
	SelectedSkillID *int64         `json:"selected_skill_id,omitempty"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
	ResponseData    map[string]any `json:"response_data,omitempty"`
	Status          RouteStatus    `json:"status"`
	ExecutionTimeMs int            `json:"execution_time_ms"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}

// RouteRequest is the request body for POST /v1/route.
type RouteRequest struct {
	Input     string         `json:"input"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"` // caller-supplied; generated when empty
}

// RouteEnvelope is the response body for POST /v1/route and the replayed
// shape stored in history lookups. The routing contract uses its own
// envelope rather than the service-wide one.
type RouteEnvelope struct {
	Success   bool       `json:"success"`
	RequestID string     `json:"request_id"`
	Data      *RouteData `json:"data,omitempty"`
	Error     *string    `json:"error,omitempty"`
}

// RouteData is the data portion of a route response.
type RouteData struct {
	Route           RouteDetail `json:"route"`
	ExecutionTimeMs int         `json:"execution_time_ms"`
}

// RouteDetail describes the selected skill and its response.
type RouteDetail struct {
	Skill      string         `json:"skill"`
	Confidence float64        `json:"confidence"`
	Response   map[string]any `json:"response,omitempty"`
}

// RouteHistoryPage is the data payload for GET /v1/route/history.
type RouteHistoryPage struct {
	Routes     []RouteAttempt `json:"routes"`
	Pagination Pagination     `json:"pagination"`
}

// Pagination describes a page of a larger result set.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}
