package apiclient

import (
	"fmt"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http status=%d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%s, status=%d, request_id=%s)", e.Message, e.Code, e.Status, e.RequestID)
}

// Rejection maps the error code back to the validator result the server
// rejected the batch with.
func (e *APIError) Rejection() (hierarchy.Result, bool) {
	switch e.Code {
	case services.CodeSelfParent:
		return hierarchy.RejectedSelfParent, true
	case services.CodeCycle:
		return hierarchy.RejectedCycle, true
	case services.CodeCrossGroup:
		return hierarchy.RejectedCrossGroup, true
	case services.CodeNodeNotFound:
		return hierarchy.RejectedUnknownNode, true
	default:
		return hierarchy.Accepted, false
	}
}

// Unwrap exposes the rejection sentinel, so errors.Is(err, hierarchy.ErrCycle)
// works across the wire.
func (e *APIError) Unwrap() error {
	if r, ok := e.Rejection(); ok {
		return r.Err()
	}
	return nil
}
