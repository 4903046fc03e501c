package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/annai/internal/auth"
	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/service/router"
	"github.com/ashita-ai/annai/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	router              *router.Router
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	defaultPageLimit    int
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	Router              *router.Router
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	DefaultPageLimit    int
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.DefaultPageLimit <= 0 {
		d.DefaultPageLimit = 20
	}
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		router:              d.Router,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		defaultPageLimit:    d.DefaultPageLimit,
	}
}

// writeInternalError logs the underlying error and writes a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// HandleAuthToken handles POST /auth/token: exchanges a user_id and API key
// for a JWT. Failure paths always run an Argon2 verification so response
// timing does not reveal whether a user_id exists.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.UserID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "user_id and api_key are required")
		return
	}

	user, err := h.db.GetUserByUserID(r.Context(), req.UserID)
	if err != nil {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	if user.APIKeyHash == nil {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, *user.APIKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := model.HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Postgres: "ok",
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}

	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Postgres = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, r, status, resp)
}

// SeedAdmin ensures an admin user exists when an admin API key is configured.
// Idempotent: an existing admin row is left untouched.
func (h *Handlers) SeedAdmin(ctx context.Context, userID, apiKey string) error {
	if apiKey == "" {
		h.logger.Debug("admin seed skipped, no admin api key configured")
		return nil
	}
	if userID == "" {
		userID = "admin"
	}

	if _, err := h.db.GetUserByUserID(ctx, userID); err == nil {
		h.logger.Info("admin user already exists", "user_id", userID)
		return nil
	}

	hash, err := auth.HashAPIKey(apiKey)
	if err != nil {
		return err
	}
	_, err = h.db.CreateUser(ctx, model.User{
		UserID:     userID,
		Name:       "Administrator",
		Role:       model.RoleAdmin,
		APIKeyHash: &hash,
	})
	if err != nil {
		return err
	}
	h.logger.Info("admin user seeded", "user_id", userID)
	return nil
}
