package staging

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/pkg/handlers"
	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

// Handler serves the moderation workflow.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "staging"),
		pagination: pagination,
	}
}

// Routes returns the route group for staging endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/staging",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: Spec.List},
			{Method: "POST", Pattern: "", Handler: h.Create, OpenAPI: Spec.Create},
			{Method: "GET", Pattern: "/pending-count", Handler: h.PendingCount, OpenAPI: Spec.PendingCount},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find, OpenAPI: Spec.Find},
			{Method: "PATCH", Pattern: "/{id}", Handler: h.Update, OpenAPI: Spec.Update},
			{Method: "POST", Pattern: "/{id}/approve", Handler: h.Approve, OpenAPI: Spec.Approve},
			{Method: "POST", Pattern: "/{id}/reject", Handler: h.Reject, OpenAPI: Spec.Reject},
		},
	}
}

// actor names the caller in audit events and review defaults.
func actor(r *http.Request) string {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		return "system"
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Subject
}

// List returns a page of staged items.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Create stages a new item for review.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	cmd, err := handlers.DecodeJSON[CreateCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	item, err := h.sys.Create(r.Context(), actor(r), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, item)
}

// PendingCount returns the size of the review queue.
func (h *Handler) PendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.sys.PendingCount(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, PendingCount{PendingCount: n})
}

// Find returns a single staged item.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	item, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, item)
}

// Update patches a pending item.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	cmd, err := handlers.DecodeJSON[UpdateCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	item, err := h.sys.Update(r.Context(), actor(r), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, item)
}

// Approve publishes a pending item and fans it out to matching farmers.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, cmd, ok := h.reviewRequest(w, r)
	if !ok {
		return
	}

	result, err := h.sys.Approve(r.Context(), actor(r), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Reject closes a pending item without publishing it.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, cmd, ok := h.reviewRequest(w, r)
	if !ok {
		return
	}

	result, err := h.sys.Reject(r.Context(), actor(r), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// reviewRequest parses the item id and an optional review body.
func (h *Handler) reviewRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, ReviewCommand, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return uuid.Nil, ReviewCommand{}, false
	}

	cmd, err := handlers.DecodeJSON[ReviewCommand](r)
	if err != nil && !errors.Is(err, handlers.ErrEmptyBody) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return uuid.Nil, ReviewCommand{}, false
	}

	return id, cmd, true
}

type spec struct {
	List         *openapi.Operation
	Create       *openapi.Operation
	PendingCount *openapi.Operation
	Find         *openapi.Operation
	Update       *openapi.Operation
	Approve      *openapi.Operation
	Reject       *openapi.Operation
}

// Spec holds OpenAPI operations for the moderation workflow.
var Spec = spec{
	List: &openapi.Operation{
		Summary: "List staged items",
		Tags:    []string{"Staging"},
		Parameters: []*openapi.Parameter{
			openapi.QueryParam("status", "string", "pending, approved, or rejected", false),
			openapi.QueryParam("item_type", "string", "scheme or subsidy", false),
			openapi.QueryParam("source", "string", "Origin of the item", false),
			openapi.QueryParam("search", "string", "Search names and ministry", false),
			openapi.QueryParam("sort", "string", "Comma-separated sort fields", false),
			openapi.QueryParam("page", "integer", "Page number", false),
			openapi.QueryParam("per_page", "integer", "Items per page", false),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Staged items", "StagedItemPage"),
		},
	},
	Create: &openapi.Operation{
		Summary:     "Stage an item for review",
		Tags:        []string{"Staging"},
		RequestBody: openapi.RequestBodyJSON("StagedItemCreate", true),
		Responses: map[int]*openapi.Response{
			201: openapi.ResponseJSON("Staged item", "StagedItem"),
			400: openapi.ResponseRef("BadRequest"),
			409: {Description: "Source record is already staged"},
		},
	},
	PendingCount: &openapi.Operation{
		Summary: "Count items awaiting review",
		Tags:    []string{"Staging"},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Review queue size", "PendingCount"),
		},
	},
	Find: &openapi.Operation{
		Summary:    "Get a staged item",
		Tags:       []string{"Staging"},
		Parameters: []*openapi.Parameter{openapi.PathParam("id", "Staged item ID")},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Staged item", "StagedItem"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
	Update: &openapi.Operation{
		Summary:     "Edit a pending item",
		Tags:        []string{"Staging"},
		Parameters:  []*openapi.Parameter{openapi.PathParam("id", "Staged item ID")},
		RequestBody: openapi.RequestBodyJSON("StagedItemUpdate", true),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Updated item", "StagedItem"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
			409: {Description: "Item is no longer pending"},
			412: {Description: "Version does not match"},
		},
	},
	Approve: &openapi.Operation{
		Summary:     "Approve and publish a pending item",
		Tags:        []string{"Staging"},
		Parameters:  []*openapi.Parameter{openapi.PathParam("id", "Staged item ID")},
		RequestBody: openapi.RequestBodyJSON("ReviewCommand", false),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Published item and fan-out results", "Approval"),
			404: openapi.ResponseRef("NotFound"),
			409: {Description: "Item is no longer pending"},
		},
	},
	Reject: &openapi.Operation{
		Summary:     "Reject a pending item",
		Tags:        []string{"Staging"},
		Parameters:  []*openapi.Parameter{openapi.PathParam("id", "Staged item ID")},
		RequestBody: openapi.RequestBodyJSON("ReviewCommand", false),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Rejected item", "Rejection"),
			404: openapi.ResponseRef("NotFound"),
			409: {Description: "Item is no longer pending"},
		},
	},
}

// Schemas returns the OpenAPI component schemas for the moderation workflow.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"StagedItem": {
			Type: "object",
			AllOf: []*openapi.Schema{
				openapi.SchemaRef("SchemeContent"),
				{
					Type: "object",
					Properties: map[string]*openapi.Schema{
						"id":           {Type: "string", Format: "uuid"},
						"source":       {Type: "string", Enum: []any{"manual", "myscheme", "data_gov", "rss_feed", "state_portal"}},
						"source_ref":   {Type: "string"},
						"raw_data":     {Type: "object"},
						"status":       {Type: "string", Enum: []any{"pending", "approved", "rejected"}},
						"reviewed_by":  {Type: "string"},
						"review_notes": {Type: "string"},
						"reviewed_at":  {Type: "string", Format: "date-time"},
						"version":      {Type: "integer"},
						"created_at":   {Type: "string", Format: "date-time"},
						"updated_at":   {Type: "string", Format: "date-time"},
					},
				},
			},
		},
		"StagedItemCreate": {
			Type: "object",
			AllOf: []*openapi.Schema{
				openapi.SchemaRef("SchemeContent"),
				{
					Type: "object",
					Properties: map[string]*openapi.Schema{
						"source":     {Type: "string", Enum: []any{"manual", "myscheme", "data_gov", "rss_feed", "state_portal"}},
						"source_ref": {Type: "string"},
						"raw_data":   {Type: "object"},
					},
				},
			},
		},
		"StagedItemUpdate": {
			Type: "object",
			AllOf: []*openapi.Schema{
				openapi.SchemaRef("SchemeContent"),
				{
					Type: "object",
					Properties: map[string]*openapi.Schema{
						"version": {Type: "integer", Description: "Expected current version"},
					},
				},
			},
		},
		"ReviewCommand": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"reviewed_by":  {Type: "string"},
				"review_notes": {Type: "string"},
			},
		},
		"MatchingStats": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"matched":  {Type: "integer"},
				"notified": {Type: "integer"},
				"failed":   {Type: "integer"},
			},
		},
		"Approval": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"message":        {Type: "string"},
				"item":           openapi.SchemaRef("StagedItem"),
				"scheme":         openapi.SchemaRef("Scheme"),
				"matching_stats": openapi.SchemaRef("MatchingStats"),
			},
		},
		"Rejection": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"message": {Type: "string"},
				"item":    openapi.SchemaRef("StagedItem"),
			},
		},
		"PendingCount": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"pending_count": {Type: "integer"},
			},
		},
		"StagedItemPage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"items":    {Type: "array", Items: openapi.SchemaRef("StagedItem")},
				"total":    {Type: "integer"},
				"page":     {Type: "integer"},
				"per_page": {Type: "integer"},
				"pages":    {Type: "integer"},
			},
		},
	}
}
