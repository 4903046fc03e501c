// Package router orchestrates one routing request end to end: classify the
// input, resolve the skill, invoke it, and persist the attempt. Every request
// that reaches invocation leaves a row behind, success or not, so history is
// a complete audit of what the router did.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/annai/internal/classifier"
	"github.com/ashita-ai/annai/internal/invoker"
	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/storage"
)

// Sentinel errors the HTTP layer maps to status codes.
var (
	ErrDuplicateRequest  = errors.New("router: request id already processed")
	ErrNoSkillsAvailable = errors.New("router: no active skills registered")
	ErrSkillUnavailable  = errors.New("router: selected skill unavailable")
	ErrForbidden         = errors.New("router: access denied")
	ErrNotFound          = errors.New("router: route attempt not found")
)

// InvocationError reports a skill invocation that failed after a routing
// decision was made. The attempt has already been persisted with the matching
// terminal status by the time this error is returned. Skill, Confidence, and
// ExecutionTimeMs carry the routing decision so the failure response can use
// the same envelope shape as a success.
type InvocationError struct {
	RequestID       string
	Status          model.RouteStatus
	Skill           string
	Confidence      float64
	ExecutionTimeMs int
	Err             error
}

func (e *InvocationError) Error() string { return e.Err.Error() }
func (e *InvocationError) Unwrap() error { return e.Err }

// Store is the persistence surface the router needs. *storage.DB satisfies it.
type Store interface {
	GetSkill(ctx context.Context, id int64) (model.Skill, error)
	InsertRouteAttempt(ctx context.Context, a model.RouteAttempt) error
	RouteAttemptExists(ctx context.Context, requestID string) (bool, error)
	GetRouteAttemptByRequestID(ctx context.Context, requestID string) (model.RouteAttempt, error)
	ListRouteAttemptsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.RouteAttempt, int, error)
}

// IntentClassifier selects a skill for free-text input.
type IntentClassifier interface {
	Classify(ctx context.Context, input string) (classifier.Intent, error)
}

// SkillInvoker calls a skill endpoint.
type SkillInvoker interface {
	Invoke(ctx context.Context, skill model.Skill, input string, reqCtx map[string]any) (map[string]any, error)
}

// Router routes input to skills and records the outcome.
type Router struct {
	store      Store
	classifier IntentClassifier
	invoker    SkillInvoker
	logger     *slog.Logger

	maxHistoryLimit int
}

// New creates a Router.
func New(store Store, cls IntentClassifier, inv SkillInvoker, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:           store,
		classifier:      cls,
		invoker:         inv,
		logger:          logger,
		maxHistoryLimit: 100,
	}
}

// NewRequestID generates a request id for callers that did not supply one.
func NewRequestID() string {
	return "req_" + uuid.NewString()
}

var routerMeter = otel.GetMeterProvider().Meter("annai/router")

// recordOutcome counts routed requests by terminal status and skill.
func recordOutcome(ctx context.Context, skill string, status model.RouteStatus, elapsed time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("annai.skill", skill),
		attribute.String("annai.status", string(status)),
	)
	if counter, err := routerMeter.Int64Counter("annai.route.count"); err == nil {
		counter.Add(ctx, 1, attrs)
	}
	if hist, err := routerMeter.Float64Histogram("annai.route.duration",
		otelmetric.WithUnit("ms")); err == nil {
		hist.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

// Route executes one routing request. userID is nil for anonymous callers.
// meta is caller-context recorded alongside the attempt (user agent and the
// like); the router adds the selected skill's name to it.
//
// A caller-supplied request id that already has a persisted attempt is
// rejected with ErrDuplicateRequest before any classification happens, so a
// replay can never invoke the skill twice.
func (r *Router) Route(ctx context.Context, userID *uuid.UUID, req model.RouteRequest, meta map[string]any) (model.RouteEnvelope, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = NewRequestID()
	} else {
		exists, err := r.store.RouteAttemptExists(ctx, requestID)
		if err != nil {
			return model.RouteEnvelope{}, err
		}
		if exists {
			return model.RouteEnvelope{}, fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
		}
	}

	intent, err := r.classifier.Classify(ctx, req.Input)
	if err != nil {
		return model.RouteEnvelope{}, err
	}
	if intent.SkillID == nil {
		return model.RouteEnvelope{}, ErrNoSkillsAvailable
	}

	// The skill can vanish or be deactivated between classification and
	// resolution; both read as "no such skill" to the caller.
	skill, err := r.store.GetSkill(ctx, *intent.SkillID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.RouteEnvelope{}, fmt.Errorf("%w: skill %d", ErrSkillUnavailable, *intent.SkillID)
		}
		return model.RouteEnvelope{}, fmt.Errorf("router: resolve skill %d: %w", *intent.SkillID, err)
	}
	if !skill.IsActive {
		return model.RouteEnvelope{}, fmt.Errorf("%w: %s", ErrSkillUnavailable, skill.Name)
	}

	if meta == nil {
		meta = map[string]any{}
	}
	meta["skill_name"] = skill.Name

	r.logger.Info("routing request",
		"request_id", requestID,
		"skill", skill.Name,
		"confidence", intent.Confidence,
	)

	response, invokeErr := r.invoker.Invoke(ctx, skill, req.Input, req.Context)
	elapsed := int(time.Since(start).Milliseconds())

	attempt := model.RouteAttempt{
		RequestID:       requestID,
		UserID:          userID,
		InputText:       req.Input,
		Context:         req.Context,
		SelectedSkillID: &skill.ID,
		ConfidenceScore: &intent.Confidence,
		ExecutionTimeMs: elapsed,
		Metadata:        meta,
	}

	if invokeErr != nil {
		status := model.RouteFailed
		var timeoutErr *invoker.TimeoutError
		if errors.As(invokeErr, &timeoutErr) {
			status = model.RouteTimeout
		}
		msg := invokeErr.Error()
		attempt.Status = status
		attempt.ErrorMessage = &msg

		// A zero-row insert means a concurrent submission with the same
		// request id won the race past the up-front existence check; the
		// loser reports the conflict, never a result of its own.
		if err := r.store.InsertRouteAttempt(ctx, attempt); err != nil {
			if errors.Is(err, storage.ErrDuplicateRequestID) {
				return model.RouteEnvelope{}, fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
			}
			r.logger.Error("failed to persist route attempt",
				"request_id", requestID, "error", err)
		}

		r.logger.Warn("skill invocation failed",
			"request_id", requestID,
			"skill", skill.Name,
			"status", string(status),
			"error", msg,
		)
		recordOutcome(ctx, skill.Name, status, time.Since(start))
		return model.RouteEnvelope{}, &InvocationError{
			RequestID:       requestID,
			Status:          status,
			Skill:           skill.Name,
			Confidence:      intent.Confidence,
			ExecutionTimeMs: elapsed,
			Err:             invokeErr,
		}
	}

	attempt.Status = model.RouteSuccess
	attempt.ResponseData = response
	if err := r.store.InsertRouteAttempt(ctx, attempt); err != nil {
		if errors.Is(err, storage.ErrDuplicateRequestID) {
			return model.RouteEnvelope{}, fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
		}
		r.logger.Error("failed to persist route attempt",
			"request_id", requestID, "error", err)
	}
	recordOutcome(ctx, skill.Name, model.RouteSuccess, time.Since(start))

	return model.RouteEnvelope{
		Success:   true,
		RequestID: requestID,
		Data: &model.RouteData{
			Route: model.RouteDetail{
				Skill:      skill.Name,
				Confidence: intent.Confidence,
				Response:   response,
			},
			ExecutionTimeMs: elapsed,
		},
	}, nil
}

// RecordFailure writes a failed attempt for a request that died before the
// normal persistence path ran. Best effort: a write error is logged, never
// returned, and an existing row for the request id is left untouched.
func (r *Router) RecordFailure(ctx context.Context, requestID string, userID *uuid.UUID, input string, reqCtx map[string]any, elapsed time.Duration, cause string) {
	if requestID == "" {
		requestID = NewRequestID()
	}
	attempt := model.RouteAttempt{
		RequestID:       requestID,
		UserID:          userID,
		InputText:       input,
		Context:         reqCtx,
		Status:          model.RouteFailed,
		ExecutionTimeMs: int(elapsed.Milliseconds()),
		ErrorMessage:    &cause,
	}
	if err := r.store.InsertRouteAttempt(ctx, attempt); err != nil && !errors.Is(err, storage.ErrDuplicateRequestID) {
		r.logger.Error("failed to record route failure",
			"request_id", requestID, "error", err)
	}
}

// GetHistory returns one page of the user's route attempts, newest first.
// Page numbers start at 1; limit is clamped to the router's maximum.
func (r *Router) GetHistory(ctx context.Context, userID uuid.UUID, page, limit int) (model.RouteHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > r.maxHistoryLimit {
		limit = r.maxHistoryLimit
	}

	offset := (page - 1) * limit
	attempts, total, err := r.store.ListRouteAttemptsByUser(ctx, userID, limit, offset)
	if err != nil {
		return model.RouteHistoryPage{}, err
	}
	if attempts == nil {
		attempts = []model.RouteAttempt{}
	}

	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}

	return model.RouteHistoryPage{
		Routes: attempts,
		Pagination: model.Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: pages,
		},
	}, nil
}

// GetByRequestID retrieves one attempt, enforcing ownership: an attempt with
// an owner is visible to that owner and to admins only. Anonymous attempts
// are visible to anyone holding the request id.
func (r *Router) GetByRequestID(ctx context.Context, requestID string, requesterID *uuid.UUID, requesterRole model.UserRole) (model.RouteAttempt, error) {
	attempt, err := r.store.GetRouteAttemptByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.RouteAttempt{}, ErrNotFound
		}
		return model.RouteAttempt{}, err
	}

	if attempt.UserID != nil && requesterRole != model.RoleAdmin {
		if requesterID == nil || *requesterID != *attempt.UserID {
			return model.RouteAttempt{}, ErrForbidden
		}
	}
	return attempt, nil
}
