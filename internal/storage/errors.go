package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateName is returned when a skill registration reuses an
	// existing name, active or not.
	ErrDuplicateName = errors.New("storage: skill name already registered")

	// ErrDuplicateRequestID is returned when a route attempt reuses a
	// request id that already has a persisted row.
	ErrDuplicateRequestID = errors.New("storage: request id already recorded")

	// ErrDuplicateUserID is returned when a user creation reuses an
	// existing user_id.
	ErrDuplicateUserID = errors.New("storage: user_id already exists")
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
