package schemes

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/handlers"
	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

// Handler serves the published catalog.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "schemes"),
		pagination: pagination,
	}
}

// Routes returns the route group for catalog endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/schemes",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: Spec.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find, OpenAPI: Spec.Find},
		},
	}
}

// List returns a page of active published records.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.Browse(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single published record.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	s, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, s)
}

type spec struct {
	List *openapi.Operation
	Find *openapi.Operation
}

// Spec holds OpenAPI operations for the catalog.
var Spec = spec{
	List: &openapi.Operation{
		Summary: "List published schemes and subsidies",
		Tags:    []string{"Schemes"},
		Parameters: []*openapi.Parameter{
			openapi.QueryParam("item_type", "string", "scheme or subsidy", false),
			openapi.QueryParam("state", "string", "Target state", false),
			openapi.QueryParam("search", "string", "Search names and ministry", false),
			openapi.QueryParam("sort", "string", "Comma-separated sort fields", false),
			openapi.QueryParam("page", "integer", "Page number", false),
			openapi.QueryParam("per_page", "integer", "Items per page", false),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Published records", "SchemePage"),
		},
	},
	Find: &openapi.Operation{
		Summary:    "Get a published scheme",
		Tags:       []string{"Schemes"},
		Parameters: []*openapi.Parameter{openapi.PathParam("id", "Published record ID")},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Published record", "Scheme"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
}

func contentProperties() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"item_type":         {Type: "string", Enum: []any{"scheme", "subsidy"}},
		"name_en":           {Type: "string", Example: "PM-KISAN"},
		"name_hi":           {Type: "string"},
		"ministry":          {Type: "string"},
		"description_en":    {Type: "string"},
		"description_hi":    {Type: "string"},
		"benefit_type":      {Type: "string", Enum: []any{"cash", "subsidy", "insurance", "equipment"}},
		"benefit_amount":    {Type: "string"},
		"subsidy_category":  {Type: "string", Enum: []any{"seed", "fertilizer", "equipment", "irrigation", "organic", "credit"}},
		"apply_url":         {Type: "string", Format: "uri"},
		"how_to_apply":      {Type: "string"},
		"target_state":      {Type: "string"},
		"source_url":        {Type: "string", Format: "uri"},
		"eligibility_rules": {Type: "array", Items: openapi.SchemaRef("EligibilityRule")},
	}
}

// Schemas returns the OpenAPI component schemas for the catalog.
func Schemas() map[string]*openapi.Schema {
	scheme := contentProperties()
	scheme["id"] = &openapi.Schema{Type: "string", Format: "uuid"}
	scheme["staged_item_id"] = &openapi.Schema{Type: "string", Format: "uuid"}
	scheme["source"] = &openapi.Schema{Type: "string"}
	scheme["is_active"] = &openapi.Schema{Type: "boolean"}
	scheme["published_at"] = &openapi.Schema{Type: "string", Format: "date-time"}
	scheme["fanout"] = &openapi.Schema{
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"status":     {Type: "string", Enum: []any{"pending", "complete", "failed"}},
			"attempts":   {Type: "integer"},
			"matched":    {Type: "integer"},
			"notified":   {Type: "integer"},
			"failed":     {Type: "integer"},
			"error":      {Type: "string"},
			"updated_at": {Type: "string", Format: "date-time"},
		},
	}

	return map[string]*openapi.Schema{
		"EligibilityRule": {
			Type:     "object",
			Required: []string{"rule_type", "rule_value"},
			Properties: map[string]*openapi.Schema{
				"rule_type": {Type: "string", Enum: []any{
					"state", "district", "crop", "land_min", "land_max",
					"income_max", "season", "ownership", "irrigation",
				}},
				"rule_value":   {Type: "string", Example: "Madhya Pradesh"},
				"is_mandatory": {Type: "boolean"},
			},
		},
		"SchemeContent": {
			Type:       "object",
			Required:   []string{"item_type", "name_en"},
			Properties: contentProperties(),
		},
		"Scheme": {
			Type:       "object",
			Properties: scheme,
		},
		"SchemePage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"items":    {Type: "array", Items: openapi.SchemaRef("Scheme")},
				"total":    {Type: "integer"},
				"page":     {Type: "integer"},
				"per_page": {Type: "integer"},
				"pages":    {Type: "integer"},
			},
		},
	}
}
