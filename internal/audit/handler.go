package audit

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/kisaanseva/pkg/handlers"
	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

// Handler serves the audit trail.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "audit"),
		pagination: pagination,
	}
}

// Routes returns the route group for audit endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/audit",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: Spec.List},
		},
	}
}

// List returns a page of audit events, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters, err := FiltersFromQuery(r.URL.Query())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

type spec struct {
	List *openapi.Operation
}

// Spec holds OpenAPI operations for the audit trail.
var Spec = spec{
	List: &openapi.Operation{
		Summary: "List audit events",
		Tags:    []string{"Audit"},
		Parameters: []*openapi.Parameter{
			openapi.QueryParam("subject_type", "string", "Subject type (session, staged_item, scheme)", false),
			openapi.QueryParam("subject_id", "string", "Subject identifier", false),
			openapi.QueryParam("actor", "string", "Actor", false),
			openapi.QueryParam("action", "string", "Action", false),
			openapi.QueryParam("since", "string", "Earliest occurred_at, inclusive (RFC 3339)", false),
			openapi.QueryParam("until", "string", "Latest occurred_at, exclusive (RFC 3339)", false),
			openapi.QueryParam("page", "integer", "Page number", false),
			openapi.QueryParam("per_page", "integer", "Items per page", false),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Audit events", "AuditPage"),
			400: openapi.ResponseRef("BadRequest"),
		},
	},
}

// Schemas returns the OpenAPI component schemas for the audit trail.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"AuditEvent": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"id":           {Type: "string", Format: "uuid"},
				"occurred_at":  {Type: "string", Format: "date-time"},
				"actor":        {Type: "string"},
				"action":       {Type: "string"},
				"subject_type": {Type: "string"},
				"subject_id":   {Type: "string"},
				"details":      {Type: "object"},
			},
		},
		"AuditPage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"items":    {Type: "array", Items: openapi.SchemaRef("AuditEvent")},
				"total":    {Type: "integer"},
				"page":     {Type: "integer"},
				"per_page": {Type: "integer"},
				"pages":    {Type: "integer"},
			},
		},
	}
}
