package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/annai/internal/model"
)

// SkillFilter is an equality-predicate filter for ListSkills.
// Nil fields are not applied; the zero filter returns the full catalog,
// inactive entries included.
type SkillFilter struct {
	IsActive *bool
}

const skillColumns = `id, name, version, description, endpoint, timeout_ms, auth_config, is_active, created_at, updated_at`

// CreateSkill registers a new skill. The name must be unique across the
// whole catalog regardless of active state; violations return ErrDuplicateName.
func (db *DB) CreateSkill(ctx context.Context, req model.RegisterSkillRequest) (model.Skill, error) {
	skill := model.Skill{
		Name:        req.Name,
		Version:     req.Version,
		Description: req.Description,
		Endpoint:    req.Endpoint,
		TimeoutMs:   model.DefaultTimeoutMs,
		AuthConfig:  req.AuthConfig,
		IsActive:    true,
	}
	if req.TimeoutMs != nil {
		skill.TimeoutMs = *req.TimeoutMs
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO skills (name, version, description, endpoint, timeout_ms, auth_config)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		skill.Name, skill.Version, skill.Description, skill.Endpoint, skill.TimeoutMs, skill.AuthConfig,
	).Scan(&skill.ID, &skill.CreatedAt, &skill.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Skill{}, ErrDuplicateName
		}
		return model.Skill{}, fmt.Errorf("storage: create skill: %w", err)
	}
	return skill, nil
}

// GetSkill retrieves a skill by id.
func (db *DB) GetSkill(ctx context.Context, id int64) (model.Skill, error) {
	var s model.Skill
	err := db.pool.QueryRow(ctx,
		`SELECT `+skillColumns+` FROM skills WHERE id = $1`, id,
	).Scan(
		&s.ID, &s.Name, &s.Version, &s.Description, &s.Endpoint,
		&s.TimeoutMs, &s.AuthConfig, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Skill{}, ErrNotFound
		}
		return model.Skill{}, fmt.Errorf("storage: get skill: %w", err)
	}
	return s, nil
}

// ListSkills returns skills matching the filter, ordered by id ascending.
// Registration order is an observable contract: the classifier's first-match
// scan and its tie-breaks depend on it.
func (db *DB) ListSkills(ctx context.Context, filter SkillFilter) ([]model.Skill, error) {
	query := `SELECT ` + skillColumns + ` FROM skills`
	var args []any
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += " WHERE is_active = $1"
	}
	query += " ORDER BY id ASC"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list skills: %w", err)
	}
	defer rows.Close()

	var skills []model.Skill
	for rows.Next() {
		var s model.Skill
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Version, &s.Description, &s.Endpoint,
			&s.TimeoutMs, &s.AuthConfig, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan skill: %w", err)
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

// UpdateSkill applies a partial patch to a skill. Nil patch fields retain
// their prior values.
func (db *DB) UpdateSkill(ctx context.Context, id int64, patch model.UpdateSkillRequest) (model.Skill, error) {
	var s model.Skill
	err := db.pool.QueryRow(ctx,
		`UPDATE skills SET
			version     = COALESCE($2, version),
			description = COALESCE($3, description),
			endpoint    = COALESCE($4, endpoint),
			timeout_ms  = COALESCE($5, timeout_ms),
			auth_config = COALESCE($6, auth_config),
			is_active   = COALESCE($7, is_active),
			updated_at  = $8
		 WHERE id = $1
		 RETURNING `+skillColumns,
		id, patch.Version, patch.Description, patch.Endpoint,
		patch.TimeoutMs, patch.AuthConfig, patch.IsActive, time.Now().UTC(),
	).Scan(
		&s.ID, &s.Name, &s.Version, &s.Description, &s.Endpoint,
		&s.TimeoutMs, &s.AuthConfig, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Skill{}, ErrNotFound
		}
		return model.Skill{}, fmt.Errorf("storage: update skill: %w", err)
	}
	return s, nil
}

// DeactivateSkill performs the logical delete: is_active flips to false and
// the row stays put so historical route attempts keep a valid reference.
func (db *DB) DeactivateSkill(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE skills SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: deactivate skill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
