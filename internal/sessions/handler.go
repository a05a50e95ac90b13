package sessions

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/pkg/handlers"
	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

// Handler provides HTTP endpoints for the access session protocol.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "sessions"),
		pagination: pagination,
	}
}

// Routes returns the agent-facing session routes. The group carries no
// prefix and is mounted under the service group.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/request-access", Handler: h.RequestAccess, OpenAPI: Spec.RequestAccess},
			{Method: "POST", Pattern: "/verify-access", Handler: h.VerifyAccess, OpenAPI: Spec.VerifyAccess},
			{Method: "GET", Pattern: "/session/{id}", Handler: h.Find, OpenAPI: Spec.Find},
			{Method: "POST", Pattern: "/session/{id}/end", Handler: h.End, OpenAPI: Spec.End},
			{Method: "GET", Pattern: "/activity", Handler: h.Activity, OpenAPI: Spec.Activity},
		},
	}
}

// FarmerRoutes returns the farmer-facing access log routes.
func (h *Handler) FarmerRoutes() routes.Group {
	return routes.Group{
		Prefix: "/farmers/{farmer_id}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/access-log", Handler: h.AccessLog, OpenAPI: Spec.AccessLog},
			{Method: "POST", Pattern: "/sessions/{id}/revoke", Handler: h.Revoke, OpenAPI: Spec.Revoke},
		},
	}
}

// RequestAccess starts the consent flow for a farmer.
func (h *Handler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}

	cmd, err := handlers.DecodeJSON[RequestCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	challenge, err := h.sys.RequestAccess(r.Context(), agentID, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, challenge)
}

// VerifyAccess submits the farmer's OTP and activates the session.
func (h *Handler) VerifyAccess(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}

	cmd, err := handlers.DecodeJSON[VerifyCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	verification, err := h.sys.VerifyAccess(r.Context(), agentID, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, verification)
}

// Find returns the caller's session with its remaining time.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusNotFound, ErrNotFound)
		return
	}

	detail, err := h.sys.Find(r.Context(), agentID, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, detail)
}

// End closes the caller's session. Closing a closed session succeeds.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusNotFound, ErrNotFound)
		return
	}

	closure, err := h.sys.End(r.Context(), agentID, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, closure)
}

// Activity returns the caller's access log, newest first.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agent(w, r)
	if !ok {
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	result, err := h.sys.Activity(r.Context(), agentID, page)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// AccessLog returns every access session opened against the farmer.
func (h *Handler) AccessLog(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := h.farmer(w, r)
	if !ok {
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	result, err := h.sys.AccessLog(r.Context(), farmerID, page)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Revoke lets the farmer close an agent's active session.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := h.farmer(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusNotFound, ErrNotFound)
		return
	}

	closure, err := h.sys.Revoke(r.Context(), farmerID, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, closure)
}

func (h *Handler) agent(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrMissingToken)
		return uuid.Nil, false
	}
	if p.Role != identity.RoleAgent || p.AgentID == uuid.Nil {
		handlers.RespondError(w, h.logger, http.StatusForbidden, identity.ErrForbidden)
		return uuid.Nil, false
	}
	return p.AgentID, true
}

// farmer admits only the farmer named in the path.
func (h *Handler) farmer(w http.ResponseWriter, r *http.Request) (string, bool) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, identity.ErrMissingToken)
		return "", false
	}
	farmerID := r.PathValue("farmer_id")
	if p.Role != identity.RoleFarmer || p.FarmerID != farmerID {
		handlers.RespondError(w, h.logger, http.StatusForbidden, identity.ErrForbidden)
		return "", false
	}
	return farmerID, true
}

var farmerIDParam = openapi.PatternPathParam("farmer_id", "Farmer ID", farmers.IDPattern, "KSXR7BM2QAL")

type spec struct {
	RequestAccess *openapi.Operation
	VerifyAccess  *openapi.Operation
	Find          *openapi.Operation
	End           *openapi.Operation
	Activity      *openapi.Operation
	AccessLog     *openapi.Operation
	Revoke        *openapi.Operation
}

var pageParams = []*openapi.Parameter{
	openapi.QueryParam("page", "integer", "Page number", false),
	openapi.QueryParam("per_page", "integer", "Items per page", false),
}

// Spec holds OpenAPI operations for the access session protocol.
var Spec = spec{
	RequestAccess: &openapi.Operation{
		Summary:     "Request consent to access a farmer's record",
		Description: "Dispatches a one-time password to the farmer's registered phone.",
		Tags:        []string{"Sessions"},
		RequestBody: openapi.RequestBodyJSON("RequestAccessCommand", true),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("OTP dispatched", "Challenge"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
			409: openapi.ResponseRef("Conflict"),
			429: openapi.ResponseRef("TooManyRequests"),
			503: openapi.ResponseRef("Unavailable"),
		},
	},
	VerifyAccess: &openapi.Operation{
		Summary:     "Verify the farmer's OTP and open the session",
		Tags:        []string{"Sessions"},
		RequestBody: openapi.RequestBodyJSON("VerifyAccessCommand", true),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Session active", "Verification"),
			400: openapi.ResponseRef("BadRequest"),
			422: openapi.ResponseRef("Unprocessable"),
		},
	},
	Find: &openapi.Operation{
		Summary:    "Get session detail",
		Tags:       []string{"Sessions"},
		Parameters: []*openapi.Parameter{openapi.PathParam("id", "Session ID")},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Session detail", "SessionDetail"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
	End: &openapi.Operation{
		Summary:    "End a session",
		Tags:       []string{"Sessions"},
		Parameters: []*openapi.Parameter{openapi.PathParam("id", "Session ID")},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Session closed", "Closure"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
	Activity: &openapi.Operation{
		Summary:    "List the agent's access sessions",
		Tags:       []string{"Sessions"},
		Parameters: pageParams,
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Access log", "AccessLogPage"),
		},
	},
	AccessLog: &openapi.Operation{
		Summary: "List access sessions opened against a farmer",
		Tags:    []string{"Farmers"},
		Parameters: append([]*openapi.Parameter{
			farmerIDParam,
		}, pageParams...),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Access log", "AccessLogPage"),
			403: openapi.ResponseRef("Forbidden"),
		},
	},
	Revoke: &openapi.Operation{
		Summary: "Revoke an agent's session",
		Tags:    []string{"Farmers"},
		Parameters: []*openapi.Parameter{
			farmerIDParam,
			openapi.PathParam("id", "Session ID"),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Session closed", "Closure"),
			403: openapi.ResponseRef("Forbidden"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
}

// Schemas returns the OpenAPI component schemas for access sessions.
func Schemas() map[string]*openapi.Schema {
	statuses := []any{"requested", "awaiting_consent", "active", "ended", "expired"}
	session := map[string]*openapi.Schema{
		"session_id":             {Type: "string", Format: "uuid"},
		"farmer_id":              {Type: "string"},
		"farmer_name":            {Type: "string"},
		"agent_id":               {Type: "string", Format: "uuid"},
		"agent_name":             {Type: "string"},
		"center_name":            {Type: "string"},
		"purpose":                {Type: "string"},
		"status":                 {Type: "string", Enum: statuses},
		"otp_attempts":           {Type: "integer"},
		"requested_at":           {Type: "string", Format: "date-time"},
		"challenge_expires_at":   {Type: "string", Format: "date-time"},
		"started_at":             {Type: "string", Format: "date-time"},
		"expires_at":             {Type: "string", Format: "date-time"},
		"ended_at":               {Type: "string", Format: "date-time"},
		"end_reason":             {Type: "string"},
		"actions_taken":          {Type: "array", Items: &openapi.Schema{Type: "object"}},
		"forms_downloaded":       {Type: "array", Items: &openapi.Schema{Type: "object"}},
		"time_remaining_seconds": {Type: "integer"},
	}

	return map[string]*openapi.Schema{
		"RequestAccessCommand": {
			Type:     "object",
			Required: []string{"farmer_id", "purpose"},
			Properties: map[string]*openapi.Schema{
				"farmer_id": {Type: "string", Example: "KSXR7BM2QAL"},
				"purpose":   {Type: "string", Example: "PM-KISAN registration"},
			},
		},
		"VerifyAccessCommand": {
			Type:     "object",
			Required: []string{"farmer_id", "otp"},
			Properties: map[string]*openapi.Schema{
				"farmer_id": {Type: "string"},
				"otp":       {Type: "string", Example: "482913"},
			},
		},
		"Challenge": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"message":       {Type: "string"},
				"farmer_id":     {Type: "string"},
				"challenge_ref": {Type: "string"},
				"expires_at":    {Type: "string", Format: "date-time"},
			},
		},
		"Verification": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"session_id":  {Type: "string", Format: "uuid"},
				"verified":    {Type: "boolean"},
				"farmer_id":   {Type: "string"},
				"farmer_name": {Type: "string"},
				"expires_at":  {Type: "string", Format: "date-time"},
			},
		},
		"SessionDetail": {Type: "object", Properties: session},
		"Closure": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"message": {Type: "string"},
				"status":  {Type: "string", Enum: statuses},
			},
		},
		"AccessLogEntry": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"id":               {Type: "string", Format: "uuid"},
				"farmer_id":        {Type: "string"},
				"farmer_name":      {Type: "string"},
				"agent_name":       {Type: "string"},
				"center_name":      {Type: "string"},
				"purpose":          {Type: "string"},
				"session_start":    {Type: "string", Format: "date-time"},
				"session_end":      {Type: "string", Format: "date-time"},
				"status":           {Type: "string", Enum: statuses},
				"duration_seconds": {Type: "integer"},
				"forms_count":      {Type: "integer"},
			},
		},
		"AccessLogPage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"items":    {Type: "array", Items: openapi.SchemaRef("AccessLogEntry")},
				"total":    {Type: "integer"},
				"page":     {Type: "integer"},
				"per_page": {Type: "integer"},
				"pages":    {Type: "integer"},
			},
		},
	}
}
