package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/annai/internal/model"
)

// CreateUser inserts a new user and returns it with id and timestamps set.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	if u.Metadata == nil {
		u.Metadata = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, user_id, name, role, api_key_hash, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.UserID, u.Name, string(u.Role), u.APIKeyHash, u.Metadata, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrDuplicateUserID
		}
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

const userColumns = `id, user_id, name, role, api_key_hash, metadata, created_at, updated_at`

// GetUserByUserID retrieves a user by its external user_id.
func (db *DB) GetUserByUserID(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID,
	).Scan(&u.ID, &u.UserID, &u.Name, &u.Role, &u.APIKeyHash, &u.Metadata, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by its primary key.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.UserID, &u.Name, &u.Role, &u.APIKeyHash, &u.Metadata, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("storage: get user by id: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by creation time.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.UserID, &u.Name, &u.Role, &u.APIKeyHash, &u.Metadata, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of users.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count users: %w", err)
	}
	return n, nil
}
