package gateway

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/handlers"
	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

// Handler serves session-scoped farmer data.
type Handler struct {
	sys      System
	logger   *slog.Logger
	basePath string
}

// NewHandler creates a Handler with the given system and logger. basePath is
// the prefix the API is mounted under and is used to build download links.
func NewHandler(sys System, logger *slog.Logger, basePath string) *Handler {
	return &Handler{
		sys:      sys,
		logger:   logger.With("handler", "gateway"),
		basePath: basePath,
	}
}

// Routes returns the gateway routes. They are mounted beside the session
// routes under the agent service group.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/session/{id}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/farmer", Handler: h.Farmer, OpenAPI: Spec.Farmer},
			{Method: "POST", Pattern: "/generate-form", Handler: h.GenerateForm, OpenAPI: Spec.GenerateForm},
			{Method: "GET", Pattern: "/forms/{name}", Handler: h.OpenForm, OpenAPI: Spec.OpenForm},
		},
	}
}

// sessionID parses the path id. A malformed id cannot name an active
// session and is refused like one.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusForbidden, ErrUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

// Farmer returns the farmer record with eligible schemes and documents.
func (h *Handler) Farmer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.sys.Farmer(r.Context(), id, r.URL.Query().Get("farmer_id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, view)
}

// GenerateForm renders a pre-filled application form for a published scheme.
// The scheme may be given in the body or as the scheme_id query parameter.
func (h *Handler) GenerateForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	cmd, err := handlers.DecodeJSON[FormCommand](r)
	if err != nil && !errors.Is(err, handlers.ErrEmptyBody) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	if cmd.SchemeID == uuid.Nil {
		if q := r.URL.Query().Get("scheme_id"); q != "" {
			if cmd.SchemeID, err = uuid.Parse(q); err != nil {
				handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
				return
			}
		}
	}

	result, err := h.sys.GenerateForm(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	result.DownloadURL = h.basePath + strings.TrimSuffix(r.URL.Path, "/generate-form") + "/forms/" + result.FileName
	handlers.RespondJSON(w, http.StatusOK, result)
}

// OpenForm streams a form generated in the session.
func (h *Handler) OpenForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	name := r.PathValue("name")
	blob, err := h.sys.OpenForm(r.Context(), id, name)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	defer blob.Body.Close()

	w.Header().Set("Content-Type", blob.ContentType)
	if blob.FileName != "" {
		name = blob.FileName
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if !blob.LastModified.IsZero() {
		w.Header().Set("Last-Modified", blob.LastModified.UTC().Format(http.TimeFormat))
	}
	if blob.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, blob.Body); err != nil {
		h.logger.Error("stream form failed", "session_id", id, "name", name, "error", err)
	}
}

type spec struct {
	Farmer       *openapi.Operation
	GenerateForm *openapi.Operation
	OpenForm     *openapi.Operation
}

// Spec holds OpenAPI operations for the data gateway.
var Spec = spec{
	Farmer: &openapi.Operation{
		Summary:     "Read the farmer record inside an active session",
		Description: "Returns 403 unless the session is active, unexpired, and owned by the calling agent.",
		Tags:        []string{"Service"},
		Parameters: []*openapi.Parameter{
			openapi.PathParam("id", "Session ID"),
			openapi.QueryParam("farmer_id", "string", "Farmer the caller expects the session to cover", false),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Farmer record", "FarmerView"),
			403: openapi.ResponseRef("Forbidden"),
		},
	},
	GenerateForm: &openapi.Operation{
		Summary:     "Generate a pre-filled application form",
		Tags:        []string{"Service"},
		Parameters:  []*openapi.Parameter{openapi.PathParam("id", "Session ID")},
		RequestBody: openapi.RequestBodyJSON("FormCommand", false),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Generated form", "FormResult"),
			400: openapi.ResponseRef("BadRequest"),
			403: openapi.ResponseRef("Forbidden"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
	OpenForm: &openapi.Operation{
		Summary: "Download a form generated in the session",
		Tags:    []string{"Service"},
		Parameters: []*openapi.Parameter{
			openapi.PathParam("id", "Session ID"),
			openapi.StringPathParam("name", "Form file name"),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseFile("PDF form", "application/pdf"),
			403: openapi.ResponseRef("Forbidden"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
}

// Schemas returns the OpenAPI component schemas for the data gateway.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"SchemeMatch": {
			Type:        "object",
			Description: "Published scheme fields plus the farmer's eligibility verdict.",
			Properties: map[string]*openapi.Schema{
				"id":                 {Type: "string", Format: "uuid"},
				"name_en":            {Type: "string"},
				"item_type":          {Type: "string"},
				"eligibility_status": {Type: "string", Enum: []any{"eligible", "partial", "not_eligible"}},
				"match_score":        {Type: "number"},
				"matched_rules":      {Type: "array", Items: &openapi.Schema{Type: "string"}},
				"unmatched_rules":    {Type: "array", Items: &openapi.Schema{Type: "string"}},
			},
		},
		"FarmerView": {
			Type:        "object",
			Description: "FarmerRecord fields, including crops and documents, plus schemes with eligibility verdicts.",
			Properties: map[string]*openapi.Schema{
				"farmer_id": {Type: "string"},
				"name":      {Type: "string"},
				"schemes":   {Type: "array", Items: openapi.SchemaRef("SchemeMatch")},
			},
		},
		"FormCommand": {
			Type:     "object",
			Required: []string{"scheme_id"},
			Properties: map[string]*openapi.Schema{
				"scheme_id": {Type: "string", Format: "uuid"},
			},
		},
		"FormResult": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"file_key":     {Type: "string"},
				"file_name":    {Type: "string"},
				"download_url": {Type: "string"},
				"message":      {Type: "string", Example: "Form generated successfully"},
			},
		},
	}
}
