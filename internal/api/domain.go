package api

import (
	"context"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/audit"
	"github.com/JaimeStill/kisaanseva/internal/config"
	"github.com/JaimeStill/kisaanseva/internal/fanout"
	"github.com/JaimeStill/kisaanseva/internal/farmers"
	"github.com/JaimeStill/kisaanseva/internal/forms"
	"github.com/JaimeStill/kisaanseva/internal/gateway"
	"github.com/JaimeStill/kisaanseva/internal/identity"
	"github.com/JaimeStill/kisaanseva/internal/ingest"
	"github.com/JaimeStill/kisaanseva/internal/matching"
	"github.com/JaimeStill/kisaanseva/internal/notifications"
	"github.com/JaimeStill/kisaanseva/internal/otp"
	"github.com/JaimeStill/kisaanseva/internal/schemes"
	"github.com/JaimeStill/kisaanseva/internal/sessions"
	"github.com/JaimeStill/kisaanseva/internal/staging"
	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Identity identity.System
	Farmers  farmers.System
	Sessions sessions.System
	Gateway  gateway.System
	Schemes  schemes.System
	Staging  staging.System
	Audit    audit.System

	fanout         *fanout.Worker
	oidc           *identity.OIDCVerifier
	ingest         *ingest.Syncer
	sweepInterval  time.Duration
	ingestInterval time.Duration
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	db := runtime.Database.Connection()
	logger := runtime.Logger

	auditSystem := audit.New(
		audit.NewStore(db),
		runtime.Events,
		cfg.Events.AuditTopic,
		logger,
		runtime.Pagination,
	)

	oidcVerifier := newOIDCVerifier(cfg, runtime)
	identitySystem := identity.New(
		identity.NewAgentStore(db),
		identity.NewSigner(
			cfg.Auth.JWTSecret,
			cfg.Auth.Issuer,
			cfg.Auth.AccessTokenTTLDuration(),
			cfg.Auth.RefreshTokenTTLDuration(),
			runtime.Now,
		),
		runtime.RefreshStore(),
		oidcVerifier,
		logger,
	)

	farmersSystem := farmers.New(farmers.NewStore(db), logger)

	sessionsSystem := sessions.New(
		sessions.NewStore(db),
		farmersSystem,
		identitySystem,
		newSender(cfg, runtime),
		runtime.Limiter(),
		auditSystem,
		sessionPolicy(&cfg.Sessions),
		logger,
		runtime.Pagination,
	)

	matcher := matching.New(
		cfg.Integrations.MatchingURL,
		cfg.Integrations.MatchingTimeoutDuration(),
		logger,
	)

	catalog := schemes.NewStore(db)
	schemesSystem := schemes.New(catalog, logger, runtime.Pagination)

	gatewaySystem := gateway.New(
		sessionsSystem,
		farmersSystem,
		matcher,
		schemesSystem,
		forms.New(runtime.Storage, logger),
		logger,
	)

	fanoutConfig := fanout.Config{
		BatchSize:     cfg.Fanout.BatchSize,
		Concurrency:   cfg.Fanout.Concurrency,
		Timeout:       cfg.Fanout.TimeoutDuration(),
		RetryInterval: cfg.Fanout.RetryIntervalDuration(),
		MaxAttempts:   cfg.Fanout.MaxAttempts,
	}
	dispatcher := fanout.NewDispatcher(
		matcher,
		notifications.New(runtime.Events, cfg.Events.NotificationTopic, logger),
		catalog,
		fanoutConfig,
		logger,
	)

	stagingSystem := staging.New(
		staging.NewStore(db, catalog),
		dispatcher,
		auditSystem,
		logger,
		runtime.Pagination,
	)

	var connectors []ingest.Connector
	if cfg.Ingest.Enabled() {
		connectors = append(connectors, ingest.NewDataGov(ingest.DataGovConfig{
			URL:       cfg.Ingest.DataGovURL,
			APIKey:    cfg.Ingest.DataGovAPIKey,
			Resources: cfg.Ingest.DataGovResources,
			Limit:     cfg.Ingest.Limit,
			Timeout:   cfg.Ingest.TimeoutDuration(),
		}, logger))
	}

	return &Domain{
		Identity:       identitySystem,
		Farmers:        farmersSystem,
		Sessions:       sessionsSystem,
		Gateway:        gatewaySystem,
		Schemes:        schemesSystem,
		Staging:        stagingSystem,
		Audit:          auditSystem,
		fanout:         fanout.NewWorker(catalog, dispatcher, fanoutConfig, logger),
		oidc:           oidcVerifier,
		ingest:         ingest.New(stagingSystem, logger, connectors...),
		sweepInterval:  cfg.Sessions.SweepIntervalDuration(),
		ingestInterval: cfg.Ingest.IntervalDuration(),
	}
}

// Start schedules the domain's background work on the coordinator: the
// session expiry sweep, the fan-out retry worker, scheduled ingestion and
// OIDC discovery.
func (d *Domain) Start(lc *lifecycle.Coordinator, runtime *Runtime) {
	if d.oidc != nil {
		d.oidc.Start(lc)
	}
	logger := runtime.Logger.With("job", "session-sweep")
	lc.Every(d.sweepInterval, func(ctx context.Context) {
		n, err := d.Sessions.Sweep(ctx)
		if err != nil {
			logger.Error("session sweep failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("expired overdue sessions", "count", n)
		}
	})
	d.fanout.Start(lc)
	d.ingest.Start(lc, d.ingestInterval)
}

func sessionPolicy(cfg *config.SessionsConfig) sessions.Policy {
	return sessions.Policy{
		SessionTTL:     cfg.SessionTTLDuration(),
		ChallengeTTL:   cfg.ChallengeTTLDuration(),
		MaxOTPAttempts: cfg.MaxOTPAttempts,
		OTPLength:      cfg.OTPLength,
		OTPRateLimit:   cfg.OTPRateLimit,
		OTPRateWindow:  cfg.OTPRateWindowDuration(),
		OTPSecret:      []byte(cfg.OTPSecret),
	}
}

func newSender(cfg *config.Config, runtime *Runtime) sessions.Sender {
	if cfg.Integrations.SMSURL == "" {
		runtime.Logger.Warn("sms gateway not configured, consent messages are logged")
		return otp.NewLogSender(runtime.Logger)
	}
	return otp.NewGateway(
		cfg.Integrations.SMSURL,
		cfg.Integrations.SMSAuthKey,
		cfg.Integrations.SMSSender,
		cfg.Integrations.SMSTimeoutDuration(),
		runtime.Logger,
	)
}

func newOIDCVerifier(cfg *config.Config, runtime *Runtime) *identity.OIDCVerifier {
	if cfg.Auth.OIDCIssuer == "" {
		return nil
	}
	return identity.NewOIDCVerifier(cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID, runtime.Logger)
}
