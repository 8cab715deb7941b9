package database

import (
	"strings"

	"github.com/invoiceflow/invoiceflow-backend/pkg/errors"
	"github.com/lib/pq"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Check constraint violation (23514)
	case "23514":
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	default:
		return nil
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "normalized_name"):
		return "a vendor with this name already exists"
	case strings.Contains(constraint, "contact_email"):
		return "a vendor with this email already exists"
	case strings.Contains(constraint, "website"):
		return "a vendor with this website already exists"
	case strings.Contains(constraint, "phone"):
		return "a vendor with this phone number already exists"
	case strings.Contains(constraint, "vendor_templates"):
		return "a template for this vendor already exists"
	default:
		return "record already exists"
	}
}
