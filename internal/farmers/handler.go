package farmers

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/kisaanseva/pkg/handlers"
	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

// Handler provides the agent-facing farmer lookup endpoint.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "farmers"),
	}
}

// Routes returns the route group for farmer lookup.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/lookup", Handler: h.Lookup, OpenAPI: Spec.Lookup},
		},
	}
}

// Lookup returns the masked summary of a farmer by farmer_id or phone.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	cmd, err := handlers.DecodeJSON[LookupCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	summary, err := h.sys.Lookup(r.Context(), cmd.Query)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, summary)
}

type spec struct {
	Lookup *openapi.Operation
}

// Spec holds OpenAPI operations for farmer lookup.
var Spec = spec{
	Lookup: &openapi.Operation{
		Summary:     "Look up a farmer by farmer_id or phone",
		Tags:        []string{"Service"},
		RequestBody: openapi.RequestBodyJSON("LookupCommand", true),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Masked farmer summary", "FarmerSummary"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
}

// Schemas returns the OpenAPI component schemas for the farmer directory.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"LookupCommand": {
			Type:     "object",
			Required: []string{"query"},
			Properties: map[string]*openapi.Schema{
				"query": {Type: "string", Example: "KSXR7BM2QAL"},
			},
		},
		"FarmerSummary": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"farmer_id":    {Type: "string"},
				"name":         {Type: "string"},
				"phone_masked": {Type: "string", Example: "98******10"},
				"district":     {Type: "string"},
				"state":        {Type: "string"},
			},
		},
		"FarmerRecord": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"farmer_id": {Type: "string"},
				"name":      {Type: "string"},
				"phone":     {Type: "string"},
				"pin_code":  {Type: "string"},
				"district":  {Type: "string"},
				"state":     {Type: "string"},
				"land_area": {Type: "number"},
				"land_unit": {Type: "string", Enum: []any{"acre", "hectare", "bigha"}},
				"profile": {
					Type: "object",
					Properties: map[string]*openapi.Schema{
						"irrigation_type": {Type: "string"},
						"ownership_type":  {Type: "string"},
					},
				},
				"crops": {Type: "array", Items: &openapi.Schema{
					Type: "object",
					Properties: map[string]*openapi.Schema{
						"crop_name": {Type: "string"},
						"season":    {Type: "string"},
						"area":      {Type: "number"},
					},
				}},
				"documents": {Type: "array", Items: &openapi.Schema{
					Type: "object",
					Properties: map[string]*openapi.Schema{
						"doc_type":    {Type: "string"},
						"file_name":   {Type: "string"},
						"uploaded_at": {Type: "string", Format: "date-time"},
						"verified":    {Type: "boolean"},
					},
				}},
			},
		},
	}
}
