// Package app is the composition root: it builds stores, services and
// handlers from configuration and hands back a ready router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cardgate/internal/cardio"
	cardhandler "cardgate/internal/cardio/handler"
	confirmhandler "cardgate/internal/confirmation/handler"
	confirmservice "cardgate/internal/confirmation/service"
	deliveryhandler "cardgate/internal/delivery/handler"
	deliveryservice "cardgate/internal/delivery/service"
	disthandler "cardgate/internal/distribution/handler"
	distmetrics "cardgate/internal/distribution/metrics"
	distservice "cardgate/internal/distribution/service"
	diststore "cardgate/internal/distribution/store"
	httpapi "cardgate/internal/http"
	identityhandler "cardgate/internal/identity/handler"
	identityservice "cardgate/internal/identity/service"
	userstore "cardgate/internal/identity/store/user"
	jwttoken "cardgate/internal/jwt_token"
	"cardgate/internal/platform/config"
	"cardgate/internal/platform/metrics"
	"cardgate/internal/platform/postgres"
	redisclient "cardgate/internal/platform/redis"
	programhandler "cardgate/internal/program/handler"
	programservice "cardgate/internal/program/service"
	programstore "cardgate/internal/program/store"
	ratelimitmetrics "cardgate/internal/ratelimit/metrics"
	ratelimitmw "cardgate/internal/ratelimit/middleware"
	ratelimitmodels "cardgate/internal/ratelimit/models"
	ratelimitmemory "cardgate/internal/ratelimit/store/memory"
	ratelimitredis "cardgate/internal/ratelimit/store/redis"
	audit "cardgate/pkg/platform/audit"
	auditpublisher "cardgate/pkg/platform/audit/publisher"
	auditkafka "cardgate/pkg/platform/audit/store/kafka"
	auditmemory "cardgate/pkg/platform/audit/store/memory"
	auditpostgres "cardgate/pkg/platform/audit/store/postgres"
	"cardgate/pkg/platform/circuit"
	txcontext "cardgate/pkg/platform/tx"
)

const auditBufferSize = 1024

// App holds the router and everything that must be released on shutdown.
type App struct {
	Router chi.Router

	closers []func() error
}

type Option func(*options)

type options struct {
	registry *prometheus.Registry
	device   cardio.Device
}

// WithRegistry replaces the process registry, mainly so tests can build
// several apps without duplicate registration.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithCardDevice replaces the simulated reader backend.
func WithCardDevice(d cardio.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

type stores struct {
	db            *sql.DB
	txRunner      distservice.TxRunner
	auditStore    audit.Store
	distributions distservice.Store
	programs      programservice.Store
	identities    identityservice.UserStore
}

// Build wires the service. Postgres, Redis and Kafka are used when configured;
// otherwise everything runs in memory.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	st, err := a.openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher := auditpublisher.NewPublisher(st.auditStore,
		auditpublisher.WithAsyncBuffer(auditBufferSize),
		auditpublisher.WithLogger(logger),
	)
	a.closers = append(a.closers, func() error { publisher.Close(); return nil })

	limiter, checks, err := a.rateLimiter(ctx, cfg, logger, o.registry, publisher)
	if err != nil {
		return nil, err
	}
	if st.db != nil {
		checks["postgres"] = st.db.PingContext
	}

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	identity := identityservice.New(st.identities, tokens,
		identityservice.WithLogger(logger),
		identityservice.WithAuditPublisher(publisher),
		identityservice.WithTokenTTL(cfg.Auth.AccessTokenTTL),
	)
	if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
		if _, err := identity.SeedIssuer(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return nil, fmt.Errorf("seed issuer: %w", err)
		}
		logger.Info("issuer account ready", "username", cfg.Auth.AdminUsername)
	}

	validator, err := programservice.NewPayloadValidator()
	if err != nil {
		return nil, err
	}
	programs := programservice.New(st.programs, validator,
		programservice.WithLogger(logger),
		programservice.WithAuditPublisher(publisher),
	)

	ledgerMetrics := distmetrics.New(o.registry)
	ledger := distservice.New(st.distributions, programs, identity,
		distservice.WithLogger(logger),
		distservice.WithAuditPublisher(publisher),
		distservice.WithMetrics(ledgerMetrics),
		distservice.WithTxRunner(st.txRunner),
		distservice.WithDefaultTTL(cfg.Distribution.TTL),
	)

	gateway := deliveryservice.New(ledger, programs, identity,
		deliveryservice.NewLinkBuilder(cfg.Delivery.DeepLinkScheme, cfg.Delivery.PublicBaseURL),
		deliveryservice.WithLogger(logger),
		deliveryservice.WithAuditPublisher(publisher),
		deliveryservice.WithMetrics(ledgerMetrics),
	)
	confirmer := confirmservice.New(ledger,
		confirmservice.WithLogger(logger),
		confirmservice.WithAuditPublisher(publisher),
		confirmservice.WithMetrics(ledgerMetrics),
	)

	device := o.device
	if device == nil {
		device, err = cardio.NewSimulatedDevice(cfg.Card.SimulatedReaders)
		if err != nil {
			return nil, err
		}
	}
	scanner := cardio.NewScanner(device,
		cardio.WithLogger(logger),
		cardio.WithTimeout(cfg.Card.ScanTimeout),
	)

	tokenLimit := limiter.RateLimit(ratelimitmodels.ClassToken)
	a.Router = httpapi.NewRouter(httpapi.Config{
		Logger:   logger,
		Metrics:  metrics.New(o.registry),
		Gatherer: o.registry,
		Checks:   checks,
	},
		identityhandler.New(identity, identity, logger,
			identityhandler.WithRateLimit(limiter.RateLimit(ratelimitmodels.ClassAuth))),
		programhandler.New(programs, identity, logger),
		disthandler.New(ledger, identity, logger, cfg.Delivery.PublicBaseURL),
		deliveryhandler.New(gateway, logger, deliveryhandler.WithRateLimit(tokenLimit)),
		confirmhandler.New(confirmer, logger, confirmhandler.WithRateLimit(tokenLimit)),
		cardhandler.New(scanner, identity, logger),
	)
	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	st := &stores{}

	if cfg.Database.URL == "" {
		logger.Info("DATABASE_URL not set, using in-memory stores")
		st.identities = userstore.NewInMemory()
		st.programs = programstore.NewInMemory()
		st.distributions = diststore.NewInMemory()
		st.txRunner = txcontext.NoopRunner{}
		st.auditStore = auditmemory.NewInMemoryStore()
	} else {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		st.db = db
		st.identities = userstore.NewPostgres(db)
		st.programs = programstore.NewPostgres(db)
		st.distributions = diststore.NewPostgres(db)
		st.txRunner = txcontext.NewRunner(db)
		st.auditStore = auditpostgres.New(db)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := auditkafka.NewClient(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { client.Close(); return nil })
		if err := auditkafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 1, 1); err != nil {
			return nil, err
		}
		st.auditStore = auditkafka.New(client, cfg.Kafka.AuditTopic)
		logger.Info("audit events go to kafka", "topic", cfg.Kafka.AuditTopic)
	}
	return st, nil
}

func (a *App) rateLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer, publisher ratelimitmw.AuditPublisher) (*ratelimitmw.Middleware, map[string]httpapi.HealthCheck, error) {
	checks := make(map[string]httpapi.HealthCheck)

	var limiter ratelimitmw.Limiter = ratelimitmemory.New()
	var opts []ratelimitmw.Option
	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client != nil {
		a.closers = append(a.closers, client.Close)
		limiter = ratelimitredis.New(client)
		checks["redis"] = client.Health
		opts = append(opts, ratelimitmw.WithFallback(ratelimitmemory.New(), circuit.New("ratelimit:redis")))
	}

	policy := ratelimitmodels.Policy{Requests: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window}
	opts = append(opts,
		ratelimitmw.WithDisabled(!cfg.RateLimit.Enabled),
		ratelimitmw.WithMetrics(ratelimitmetrics.New(reg)),
		ratelimitmw.WithAuditPublisher(publisher),
		ratelimitmw.WithPolicy(ratelimitmodels.ClassToken, policy),
		ratelimitmw.WithPolicy(ratelimitmodels.ClassAuth, policy),
	)
	return ratelimitmw.New(limiter, logger, opts...), checks, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
