package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/docuflow/ocr-service/pkg/errors"
)

// checkMessages maps CHECK constraint name fragments from the audit schema
// to field-level validation messages.
var checkMessages = []struct {
	fragment string
	field    string
	message  string
}{
	{"status_valid", "status", "must be one of: success, error"},
	{"error_category_valid", "error_category", "must be one of: validation_error, download_error, processing_error, empty_result"},
	{"pages_non_negative", "pages", "must be zero or greater"},
}

// MapPQError converts a PostgreSQL constraint violation into an AppError
// a client can act on. Returns nil for anything that is not a pq.Error
// or not a recognized violation, leaving the caller to wrap it as an
// internal error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	case "23505": // unique_violation
		if strings.Contains(pqErr.Constraint, "request_id") {
			return errors.Conflict("a record for this request already exists")
		}
		return errors.Conflict("a record with these values already exists")

	case "23514": // check_violation
		for _, m := range checkMessages {
			if strings.Contains(pqErr.Constraint, m.fragment) {
				return errors.Validation(map[string]string{m.field: m.message})
			}
		}
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	case "23503": // foreign_key_violation
		return errors.BadRequest("referenced record does not exist")

	case "23502": // not_null_violation
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{col: "must not be empty"})
	}

	return nil
}
