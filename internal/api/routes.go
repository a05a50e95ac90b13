package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/kisaanseva/internal/audit"
	"github.com/JaimeStill/kisaanseva/internal/config"
	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/gateway"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/internal/sessions"
	"github.com/JaimeStill/kisaanseva/internal/staging"
	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

func routeGroups(domain *Domain, cfg *config.Config, runtime *Runtime) []routes.Group {
	agents := identity.Guard(domain.Identity, runtime.Logger, identity.RoleAgent)
	farmerPrincipals := identity.Guard(domain.Identity, runtime.Logger, identity.RoleFarmer)
	authenticated := identity.Guard(domain.Identity, runtime.Logger)

	service := routes.Group{
		Prefix: "/service",
		Guard:  agents,
		Children: []routes.Group{
			domain.Identity.Handler().Routes(),
			domain.Farmers.Handler().Routes(),
			domain.Sessions.Handler().Routes(),
			domain.Gateway.Handler(cfg.API.BasePath).Routes(),
		},
	}

	farmerLog := domain.Sessions.Handler().FarmerRoutes()
	farmerLog.Guard = farmerPrincipals

	stagingGroup := domain.Staging.Handler().Routes()
	stagingGroup.Guard = agents

	auditGroup := domain.Audit.Handler().Routes()
	auditGroup.Guard = agents

	catalog := domain.Schemes.Handler().Routes()
	catalog.Guard = authenticated

	return []routes.Group{service, farmerLog, stagingGroup, auditGroup, catalog}
}

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) error {
	groups := routeGroups(domain, cfg, runtime)
	routes.Register(mux, groups...)

	spec, err := buildSpec(cfg, groups)
	if err != nil {
		return err
	}
	mux.HandleFunc("GET /openapi.json", openapi.ServeSpec(spec))
	return nil
}

func buildSpec(cfg *config.Config, groups []routes.Group) ([]byte, error) {
	spec := openapi.NewSpec(cfg.API.OpenAPI.Title, cfg.Version)
	cfg.API.OpenAPI.Apply(spec, cfg.API.BasePath)

	for _, schemas := range []map[string]*openapi.Schema{
		identity.Schemas(),
		farmers.Schemas(),
		sessions.Schemas(),
		gateway.Schemas(),
		schemes.Schemas(),
		staging.Schemas(),
		audit.Schemas(),
	} {
		spec.Components.AddSchemas(schemas)
	}

	for _, t := range [][2]string{
		{"Auth", "Agent and farmer sign-in"},
		{"Sessions", "Consent-gated agent access sessions"},
		{"Service", "Farmer data readable only inside an active session"},
		{"Farmers", "Farmer-facing access log and revocation"},
		{"Staging", "Moderation queue for scraped scheme content"},
		{"Schemes", "Published scheme catalog"},
		{"Audit", "Append-only audit trail"},
	} {
		spec.AddTag(t[0], t[1])
	}

	routes.Describe(spec, "", groups...)

	data, err := spec.JSON()
	if err != nil {
		return nil, fmt.Errorf("marshal openapi spec: %w", err)
	}
	return data, nil
}
