package services

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

func TestMapPgErrorToServiceError(t *testing.T) {
	require.NoError(t, mapPgErrorToServiceError(nil))

	plain := errors.New("boom")
	require.Same(t, plain, mapPgErrorToServiceError(plain))

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{pgx.ErrNoRows, http.StatusNotFound, CodeNodeNotFound},
		{&pgconn.PgError{Code: "23505"}, http.StatusConflict, CodeConflict},
		{&pgconn.PgError{Code: "23503"}, http.StatusUnprocessableEntity, CodeParentNotFound},
		{&pgconn.PgError{Code: "23514"}, http.StatusUnprocessableEntity, CodeSelfParent},
		{&pgconn.PgError{Code: "23000"}, http.StatusConflict, CodeCycle},
		{&pgconn.PgError{Code: "40P01"}, http.StatusConflict, CodeConflict},
		{&pgconn.PgError{Code: "XX000"}, http.StatusInternalServerError, CodeInternal},
		{&hierarchy.RejectionError{NodeID: uuid.New(), Result: hierarchy.RejectedCycle}, http.StatusUnprocessableEntity, CodeCycle},
	}
	for _, tc := range cases {
		requireServiceError(t, mapPgErrorToServiceError(tc.err), tc.status, tc.code)
	}

	already := newServiceError(http.StatusTeapot, "X", "x", nil)
	require.Same(t, error(already), mapPgErrorToServiceError(already))
}

func TestMapValidationError(t *testing.T) {
	id := uuid.New()
	for result, code := range map[hierarchy.Result]string{
		hierarchy.RejectedSelfParent:  CodeSelfParent,
		hierarchy.RejectedCycle:       CodeCycle,
		hierarchy.RejectedCrossGroup:  CodeCrossGroup,
		hierarchy.RejectedUnknownNode: CodeNodeNotFound,
	} {
		err := mapValidationError(&hierarchy.RejectionError{NodeID: id, Result: result})
		svcErr := requireServiceError(t, err, http.StatusUnprocessableEntity, code)
		require.Contains(t, svcErr.Message, id.String())
		require.ErrorIs(t, err, result.Err())
	}
}
