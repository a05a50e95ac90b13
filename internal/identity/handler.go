package identity

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/kisaanseva/pkg/handlers"
	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

// Handler provides HTTP endpoints for agent authentication.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "identity"),
	}
}

// Routes returns the route group for authentication endpoints.
// Login and refresh are public; logout requires a bearer token.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/auth",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/login", Handler: h.Login, Public: true, OpenAPI: Spec.Login},
			{Method: "POST", Pattern: "/refresh", Handler: h.Refresh, Public: true, OpenAPI: Spec.Refresh},
			{Method: "POST", Pattern: "/logout", Handler: h.Logout, OpenAPI: Spec.Logout},
		},
	}
}

// Login exchanges agent credentials for a token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	cmd, err := handlers.DecodeJSON[LoginCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	pair, err := h.sys.Login(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, pair)
}

// Refresh rotates a refresh token into a new token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cmd, err := handlers.DecodeJSON[RefreshCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	pair, err := h.sys.Refresh(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, pair)
}

// Logout revokes the caller's refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p, _ := FromContext(r.Context())
	if err := h.sys.Logout(r.Context(), p); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondMessage(w, http.StatusOK, "logged out")
}

type spec struct {
	Login   *openapi.Operation
	Refresh *openapi.Operation
	Logout  *openapi.Operation
}

// Spec holds OpenAPI operations for the authentication endpoints.
var Spec = spec{
	Login: &openapi.Operation{
		Summary:     "Agent login",
		Tags:        []string{"Auth"},
		RequestBody: openapi.RequestBodyJSON("LoginCommand", true),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Token pair", "TokenPair"),
			401: openapi.ResponseRef("Unauthorized"),
			403: openapi.ResponseRef("Forbidden"),
		},
	},
	Refresh: &openapi.Operation{
		Summary:     "Rotate refresh token",
		Tags:        []string{"Auth"},
		RequestBody: openapi.RequestBodyJSON("RefreshCommand", true),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Token pair", "TokenPair"),
			401: openapi.ResponseRef("Unauthorized"),
		},
	},
	Logout: &openapi.Operation{
		Summary: "Revoke refresh token",
		Tags:    []string{"Auth"},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Logged out", "Message"),
			401: openapi.ResponseRef("Unauthorized"),
		},
	},
}

// Schemas returns the OpenAPI component schemas for authentication.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"LoginCommand": {
			Type:     "object",
			Required: []string{"phone", "password"},
			Properties: map[string]*openapi.Schema{
				"phone":    {Type: "string", Example: "9999999999"},
				"password": {Type: "string", Format: "password"},
			},
		},
		"RefreshCommand": {
			Type:     "object",
			Required: []string{"refresh_token"},
			Properties: map[string]*openapi.Schema{
				"refresh_token": {Type: "string"},
			},
		},
		"TokenPair": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"access_token":  {Type: "string"},
				"refresh_token": {Type: "string"},
				"token_type":    {Type: "string", Example: "bearer"},
				"expires_at":    {Type: "string", Format: "date-time"},
				"agent_name":    {Type: "string"},
				"center_name":   {Type: "string"},
			},
		},
	}
}
