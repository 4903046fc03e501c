package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/annai/internal/model"
)

const routeColumns = `id, request_id, user_id, input_text, context, selected_skill_id,
	confidence_score, response_data, status, execution_time_ms, error_message, metadata, created_at`

// InsertRouteAttempt appends one route attempt. The insert is an upsert
// keyed by request_id with insert-if-absent semantics: a duplicate request
// id leaves the existing row untouched and returns ErrDuplicateRequestID.
// This makes the orchestrator's defensive failure write a safe no-op when
// a row already exists for the request.
func (db *DB) InsertRouteAttempt(ctx context.Context, a model.RouteAttempt) error {
	if a.Context == nil {
		a.Context = map[string]any{}
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO route_attempts
			(request_id, user_id, input_text, context, selected_skill_id,
			 confidence_score, response_data, status, execution_time_ms, error_message, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (request_id) DO NOTHING`,
		a.RequestID, a.UserID, a.InputText, a.Context, a.SelectedSkillID,
		a.ConfidenceScore, a.ResponseData, string(a.Status), a.ExecutionTimeMs,
		a.ErrorMessage, a.Metadata,
	)
	if err != nil {
		return fmt.Errorf("storage: insert route attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRequestID
	}
	return nil
}

// RouteAttemptExists reports whether a route attempt with the given request
// id has been persisted.
func (db *DB) RouteAttemptExists(ctx context.Context, requestID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM route_attempts WHERE request_id = $1)`, requestID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: route attempt exists: %w", err)
	}
	return exists, nil
}

// GetRouteAttemptByRequestID retrieves one attempt by its request id.
func (db *DB) GetRouteAttemptByRequestID(ctx context.Context, requestID string) (model.RouteAttempt, error) {
	var a model.RouteAttempt
	err := db.pool.QueryRow(ctx,
		`SELECT `+routeColumns+` FROM route_attempts WHERE request_id = $1`, requestID,
	).Scan(
		&a.ID, &a.RequestID, &a.UserID, &a.InputText, &a.Context, &a.SelectedSkillID,
		&a.ConfidenceScore, &a.ResponseData, &a.Status, &a.ExecutionTimeMs,
		&a.ErrorMessage, &a.Metadata, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RouteAttempt{}, ErrNotFound
		}
		return model.RouteAttempt{}, fmt.Errorf("storage: get route attempt: %w", err)
	}
	return a, nil
}

// ListRouteAttemptsByUser returns the user's attempts ordered by creation
// time descending, plus the total count for pagination.
func (db *DB) ListRouteAttemptsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.RouteAttempt, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM route_attempts WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: count route attempts: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+routeColumns+` FROM route_attempts
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list route attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.RouteAttempt
	for rows.Next() {
		var a model.RouteAttempt
		if err := rows.Scan(
			&a.ID, &a.RequestID, &a.UserID, &a.InputText, &a.Context, &a.SelectedSkillID,
			&a.ConfidenceScore, &a.ResponseData, &a.Status, &a.ExecutionTimeMs,
			&a.ErrorMessage, &a.Metadata, &a.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan route attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}
