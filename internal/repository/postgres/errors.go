package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// pq reports unique_violation with SQLSTATE 23505.
const pqUniqueViolation pq.ErrorCode = "23505"

// IsUniqueViolation reports whether err, or anything it wraps, is a
// PostgreSQL unique violation. An empty constraint matches any unique index;
// otherwise the constraint name must match exactly.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
