package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/storage"
)

// HandleListSkills handles GET /v1/skills. Anonymous callers and regular
// users see the active catalog; admins may pass include_inactive=true to see
// deactivated entries too.
func (h *Handlers) HandleListSkills(w http.ResponseWriter, r *http.Request) {
	filter := storage.SkillFilter{}
	active := true
	filter.IsActive = &active

	if r.URL.Query().Get("include_inactive") == "true" {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || claims.Role != model.RoleAdmin {
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "include_inactive requires admin role")
			return
		}
		filter.IsActive = nil
	}

	skills, err := h.db.ListSkills(r.Context(), filter)
	if err != nil {
		h.writeInternalError(w, r, "failed to list skills", err)
		return
	}
	if skills == nil {
		skills = []model.Skill{}
	}

	writeJSON(w, r, http.StatusOK, model.SkillListResponse{
		Count:  len(skills),
		Skills: skills,
	})
}

// HandleGetSkill handles GET /v1/skills/{id}.
func (h *Handlers) HandleGetSkill(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid skill id")
		return
	}

	skill, err := h.db.GetSkill(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "skill not found")
			return
		}
		h.writeInternalError(w, r, "failed to get skill", err)
		return
	}

	writeJSON(w, r, http.StatusOK, skill)
}

// HandleRegisterSkill handles POST /v1/skills (admin-only).
func (h *Handlers) HandleRegisterSkill(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterSkillRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	skill, err := h.db.CreateSkill(r.Context(), req)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateName) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "skill name already registered")
			return
		}
		h.writeInternalError(w, r, "failed to register skill", err)
		return
	}

	h.logger.Info("skill registered", "skill_id", skill.ID, "name", skill.Name)
	writeJSON(w, r, http.StatusCreated, skill)
}

// HandleUpdateSkill handles PUT /v1/skills/{id} (admin-only). The body is a
// partial patch: absent fields keep their values.
func (h *Handlers) HandleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid skill id")
		return
	}

	var req model.UpdateSkillRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	skill, err := h.db.UpdateSkill(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "skill not found")
			return
		}
		h.writeInternalError(w, r, "failed to update skill", err)
		return
	}

	h.logger.Info("skill updated", "skill_id", skill.ID, "name", skill.Name)
	writeJSON(w, r, http.StatusOK, skill)
}

// HandleDeactivateSkill handles DELETE /v1/skills/{id} (admin-only).
// Logical delete: the row survives so route history keeps its reference.
func (h *Handlers) HandleDeactivateSkill(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid skill id")
		return
	}

	if err := h.db.DeactivateSkill(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "skill not found")
			return
		}
		h.writeInternalError(w, r, "failed to deactivate skill", err)
		return
	}

	h.logger.Info("skill deactivated", "skill_id", id)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"id":        id,
		"is_active": false,
	})
}
