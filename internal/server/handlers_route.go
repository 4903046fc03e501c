package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/service/router"
)

// writeRouteEnvelope writes a routing response. The routing endpoints use
// their own envelope instead of the service-wide one.
func writeRouteEnvelope(w http.ResponseWriter, status int, env model.RouteEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// HandleRoute handles POST /v1/route. Anonymous callers are allowed; a valid
// bearer token attributes the attempt to the calling user.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req model.RouteRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Input == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "input is required")
		return
	}

	var userID *uuid.UUID
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		id := claims.SubjectID()
		userID = &id
	}

	// A panic past this point still leaves a failed attempt behind. The
	// recovery middleware turns the panic into a 500 response afterwards.
	defer func() {
		if rec := recover(); rec != nil {
			h.router.RecordFailure(
				context.WithoutCancel(r.Context()),
				req.RequestID, userID, req.Input, req.Context,
				time.Since(start), fmt.Sprintf("internal error: %v", rec),
			)
			panic(rec)
		}
	}()

	meta := map[string]any{"user_agent": r.UserAgent()}
	env, err := h.router.Route(r.Context(), userID, req, meta)
	if err != nil {
		switch {
		case errors.Is(err, router.ErrDuplicateRequest):
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "request_id has already been processed")
		case errors.Is(err, router.ErrNoSkillsAvailable):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "no active skills available")
		case errors.Is(err, router.ErrSkillUnavailable):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "selected skill is unavailable")
		default:
			var invErr *router.InvocationError
			if errors.As(err, &invErr) {
				// Same envelope shape as a success, response omitted.
				msg := invErr.Error()
				writeRouteEnvelope(w, http.StatusInternalServerError, model.RouteEnvelope{
					RequestID: invErr.RequestID,
					Data: &model.RouteData{
						Route: model.RouteDetail{
							Skill:      invErr.Skill,
							Confidence: invErr.Confidence,
						},
						ExecutionTimeMs: invErr.ExecutionTimeMs,
					},
					Error: &msg,
				})
				return
			}
			h.writeInternalError(w, r, "routing failed", err)
		}
		return
	}

	writeRouteEnvelope(w, http.StatusOK, env)
}

// HandleRouteHistory handles GET /v1/route/history for the authenticated user.
func (h *Handlers) HandleRouteHistory(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "authentication required")
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", h.defaultPageLimit)

	history, err := h.router.GetHistory(r.Context(), claims.SubjectID(), page, limit)
	if err != nil {
		h.writeInternalError(w, r, "failed to load route history", err)
		return
	}

	writeJSON(w, r, http.StatusOK, history)
}

// HandleGetRoute handles GET /v1/route/{request_id}. Ownership is enforced in
// the service: owned attempts are visible to their owner and admins, anonymous
// attempts to anyone holding the request id.
func (h *Handlers) HandleGetRoute(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")
	if requestID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "request_id is required")
		return
	}

	var requesterID *uuid.UUID
	var role model.UserRole
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		id := claims.SubjectID()
		requesterID = &id
		role = claims.Role
	}

	attempt, err := h.router.GetByRequestID(r.Context(), requestID, requesterID, role)
	if err != nil {
		switch {
		case errors.Is(err, router.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "route attempt not found")
		case errors.Is(err, router.ErrForbidden):
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "access denied")
		default:
			h.writeInternalError(w, r, "failed to load route attempt", err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, attempt)
}

// queryInt parses an integer query parameter, returning def when absent or
// malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
