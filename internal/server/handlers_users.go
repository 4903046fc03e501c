package server

import (
	"errors"
	"net/http"

	"github.com/ashita-ai/annai/internal/auth"
	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/storage"
)

// HandleCreateUser handles POST /v1/users (admin-only).
func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidateUserID(req.UserID); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "api_key is required")
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "role must be 'user' or 'admin'")
		return
	}

	hash, err := auth.HashAPIKey(req.APIKey)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash api key", err)
		return
	}

	user, err := h.db.CreateUser(r.Context(), model.User{
		UserID:     req.UserID,
		Name:       req.Name,
		Role:       role,
		APIKeyHash: &hash,
		Metadata:   req.Metadata,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateUserID) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "user_id already exists")
			return
		}
		h.writeInternalError(w, r, "failed to create user", err)
		return
	}

	h.logger.Info("user created", "user_id", user.UserID, "role", string(user.Role))
	writeJSON(w, r, http.StatusCreated, user)
}

// HandleListUsers handles GET /v1/users (admin-only).
func (h *Handlers) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"count": len(users),
		"users": users,
	})
}
