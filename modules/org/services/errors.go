package services

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

const (
	CodeNoTenant       = "ORG_NO_TENANT"
	CodeInvalidBody    = "ORG_INVALID_BODY"
	CodeInvalidQuery   = "ORG_INVALID_QUERY"
	CodeBatchTooLarge  = "ORG_HIERARCHY_BATCH_TOO_LARGE"
	CodeDuplicate      = "ORG_HIERARCHY_DUPLICATE_NODE"
	CodeSelfParent     = "ORG_HIERARCHY_SELF_PARENT"
	CodeCycle          = "ORG_HIERARCHY_CYCLE"
	CodeCrossGroup     = "ORG_HIERARCHY_CROSS_GROUP"
	CodeNodeNotFound   = "ORG_HIERARCHY_NODE_NOT_FOUND"
	CodeParentNotFound = "ORG_PARENT_NOT_FOUND"
	CodeConflict       = "ORG_CONFLICT"
	CodeInternal       = "ORG_INTERNAL"
)

// rejectionCode maps a validator result to its stable API code.
func rejectionCode(r hierarchy.Result) string {
	switch r {
	case hierarchy.RejectedSelfParent:
		return CodeSelfParent
	case hierarchy.RejectedCycle:
		return CodeCycle
	case hierarchy.RejectedCrossGroup:
		return CodeCrossGroup
	case hierarchy.RejectedUnknownNode:
		return CodeNodeNotFound
	default:
		return CodeInvalidBody
	}
}

// mapValidationError turns a batch validation failure into a 422.
func mapValidationError(err error) error {
	if err == nil {
		return nil
	}
	var rej *hierarchy.RejectionError
	if errors.As(err, &rej) {
		return newServiceError(http.StatusUnprocessableEntity, rejectionCode(rej.Result), rej.Error(), err)
	}
	if errors.Is(err, hierarchy.ErrDuplicateUpdate) {
		return newServiceError(http.StatusUnprocessableEntity, CodeDuplicate, err.Error(), err)
	}
	return newServiceError(http.StatusUnprocessableEntity, CodeInvalidBody, err.Error(), err)
}

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return newServiceError(http.StatusNotFound, CodeNodeNotFound, "not found", err)
	}
	var rej *hierarchy.RejectionError
	if errors.As(err, &rej) {
		recordWriteConflict(rej.Result.String())
		return mapValidationError(err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		return newServiceError(http.StatusConflict, CodeConflict, "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, CodeParentNotFound, "parent not found", err)
	case "23514": // check_violation (*_not_self_parent)
		recordWriteConflict("check")
		return newServiceError(http.StatusUnprocessableEntity, CodeSelfParent, "check constraint violated", err)
	case "23000": // integrity_constraint_violation (cycle trigger)
		recordWriteConflict("cycle")
		return newServiceError(http.StatusConflict, CodeCycle, "integrity constraint violated", err)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return newServiceError(http.StatusConflict, CodeConflict, "concurrent hierarchy update, retry", err)
	default:
		return newServiceError(http.StatusInternalServerError, CodeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
