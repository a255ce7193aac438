package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
	"github.com/iota-uz/org-hierarchy/modules/org/presentation/controllers/dtos"
	"github.com/iota-uz/org-hierarchy/modules/org/presentation/mappers"
	"github.com/iota-uz/org-hierarchy/modules/org/services"
	"github.com/iota-uz/org-hierarchy/pkg/application"
	"github.com/iota-uz/org-hierarchy/pkg/composables"
)

const (
	APIPrefix       = "/org/api/hierarchy"
	RequestIDHeader = "X-Request-ID"
)

type HierarchyAPIController struct {
	hierarchy *services.HierarchyService
	apiPrefix string
}

func NewHierarchyAPIController(app application.Application) application.Controller {
	return &HierarchyAPIController{
		hierarchy: app.Service(services.HierarchyService{}).(*services.HierarchyService),
		apiPrefix: APIPrefix,
	}
}

func (c *HierarchyAPIController) Key() string {
	return c.apiPrefix
}

func (c *HierarchyAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/{kind:sectors|positions}", c.instrumentAPI("hierarchy.list", c.ListNodes)).Methods(http.MethodGet)
	api.HandleFunc("/{kind:sectors|positions}/tree", c.instrumentAPI("hierarchy.tree", c.GetTree)).Methods(http.MethodGet)
	api.HandleFunc("/{kind:sectors|positions}:batch", c.instrumentAPI("hierarchy.batch", c.Batch)).Methods(http.MethodPost)
}

func (c *HierarchyAPIController) ListNodes(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	kind, scope, ok := parseKindAndScope(w, r, requestID)
	if !ok {
		return
	}

	nodes, err := c.hierarchy.ListNodes(r.Context(), kind, scope)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.NodeListResponse{
		Kind:  kind.String(),
		Nodes: dtos.NodesToDTO(nodes),
	})
}

func (c *HierarchyAPIController) GetTree(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	kind, scope, ok := parseKindAndScope(w, r, requestID)
	if !ok {
		return
	}
	var selected *uuid.UUID
	if v := strings.TrimSpace(r.URL.Query().Get("selected")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidQuery, "selected must be a uuid")
			return
		}
		selected = &id
	}

	nodes, err := c.hierarchy.ListNodes(r.Context(), kind, scope)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, mappers.HierarchyToTree(hierarchy.Build(kind, nodes), selected))
}

// Batch applies a list of parent changes as one unit; either all of them are
// stored or none.
func (c *HierarchyAPIController) Batch(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	kind, err := hierarchy.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeAPIError(w, http.StatusNotFound, requestID, services.CodeInvalidQuery, err.Error())
		return
	}

	var req services.UpdateHierarchyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}

	res, err := c.hierarchy.ApplyHierarchy(r.Context(), kind, req)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.BatchResponse{Requested: res.Requested, Updated: res.Updated})
}

func parseKindAndScope(w http.ResponseWriter, r *http.Request, requestID string) (hierarchy.Kind, services.Scope, bool) {
	kind, err := hierarchy.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeAPIError(w, http.StatusNotFound, requestID, services.CodeInvalidQuery, err.Error())
		return 0, services.Scope{}, false
	}
	var scope services.Scope
	if v := strings.TrimSpace(r.URL.Query().Get("sector_id")); v != "" && kind.Grouped() {
		id, err := uuid.Parse(v)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidQuery, "sector_id must be a uuid")
			return 0, services.Scope{}, false
		}
		scope.SectorID = &id
	}
	return kind, scope, true
}

// ensureRequestID prefers the id the logging middleware already assigned.
func ensureRequestID(r *http.Request) string {
	if v, ok := composables.UseRequestID(r.Context()); ok {
		return v
	}
	v := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if v != "" {
		return v
	}
	v = uuid.NewString()
	r.Header.Set(RequestIDHeader, v)
	return v
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, services.CodeInternal, err.Error())
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	writeJSON(w, status, dtos.APIError{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
