package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/authguard/internal/alert"
	"github.com/vyrodovalexey/authguard/internal/audit"
	"github.com/vyrodovalexey/authguard/internal/auth"
	"github.com/vyrodovalexey/authguard/internal/auth/apikey"
	"github.com/vyrodovalexey/authguard/internal/auth/jwt"
	"github.com/vyrodovalexey/authguard/internal/cache"
	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/health"
	"github.com/vyrodovalexey/authguard/internal/observability"
	"github.com/vyrodovalexey/authguard/internal/principal"
	"github.com/vyrodovalexey/authguard/internal/server"
)

// application holds all components. Closers are grouped by shutdown stage.
type application struct {
	cfg      *config.Config
	server   *server.Server
	tracer   *observability.Tracer
	registry *prometheus.Registry
	checker  *health.Checker

	schedulers []interface{ Stop() }
	recorder   *audit.Recorder
	sinks      []io.Closer
	caches     []io.Closer
	stores     []io.Closer
}

// initApplication builds every component from cfg. On error the
// components built so far are released.
func initApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (app *application, err error) {
	app = &application{cfg: cfg}
	defer func() {
		if err != nil {
			app.close(context.Background(), logger)
			app = nil
		}
	}()

	app.tracer, err = observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		return app, fmt.Errorf("init tracer: %w", err)
	}

	cache.GetMetrics().Init()
	app.registry = observability.NewRegistry(cache.GetMetrics())
	healthMetrics := health.NewMetrics(app.registry)
	healthMetrics.Init()
	app.checker = health.NewChecker(version, health.WithMetrics(healthMetrics))

	usage := principal.NewUsageRegistry()
	pruner, err := principal.NewUsagePruner(usage, 0, "", logger)
	if err != nil {
		return app, err
	}
	pruner.Start()
	app.schedulers = append(app.schedulers, pruner)

	auditStore, err := app.initAuditStore(ctx, logger)
	if err != nil {
		return app, err
	}
	auditMetrics := audit.NewMetrics(app.registry)

	var recorder auth.AuditRecorder
	if cfg.Audit.Enabled {
		app.recorder = audit.NewRecorder(auditStore, cfg.Audit,
			audit.WithRecorderLogger(logger),
			audit.WithRecorderMetrics(auditMetrics),
		)
		recorder = app.recorder

		if cfg.Audit.RetentionDays > 0 {
			retention, rerr := audit.NewRetentionScheduler(auditStore, cfg.Audit.RetentionDays,
				cfg.Audit.RetentionSchedule, auditMetrics, logger)
			if rerr != nil {
				return app, rerr
			}
			retention.Start()
			app.schedulers = append(app.schedulers, retention)
		}
	}

	extractorOpts := []auth.ExtractorOption{auth.WithExtractorLogger(logger)}
	serviceOpts := []auth.ServiceOption{
		auth.WithServiceLogger(logger),
		auth.WithServiceMetrics(auth.NewMetrics(app.registry)),
	}
	if recorder != nil {
		serviceOpts = append(serviceOpts, auth.WithAuditRecorder(recorder))
	}

	if cfg.APIKey.Enabled {
		strategy, serr := app.initAPIKey(ctx, usage, logger)
		if serr != nil {
			return app, serr
		}
		serviceOpts = append(serviceOpts, auth.WithStrategy(strategy))
	}

	var revoker server.TokenRevoker
	if cfg.JWT.Enabled {
		strategy, serr := app.initJWT(ctx, usage, logger)
		if serr != nil {
			return app, serr
		}
		revoker = strategy
		serviceOpts = append(serviceOpts, auth.WithStrategy(strategy))
		extractorOpts = append(extractorOpts, auth.WithSignedTokens(cfg.JWT.AllowQueryToken))
	}

	svc := auth.NewService(cfg.Auth, auth.NewExtractor(cfg.Auth, extractorOpts...), serviceOpts...)

	var alerts server.AlertEngine
	if cfg.Alert.Enabled {
		engine, aerr := app.initAlerts(auditStore, logger)
		if aerr != nil {
			return app, aerr
		}
		alerts = engine
	}

	deps := server.Deps{
		Auth:         svc,
		Audit:        auditStore,
		Recorder:     recorder,
		Alerts:       alerts,
		Revoker:      revoker,
		Usage:        usage,
		Registry:     app.registry,
		Tracer:       app.tracer,
		Health:       app.checker,
		Logger:       logger,
		StripHeaders: []string{cfg.Auth.HeaderName},
	}
	app.server, err = server.New(cfg.Server, deps)
	if err != nil {
		return app, err
	}
	return app, nil
}

func (app *application) initAuditStore(ctx context.Context, logger observability.Logger) (audit.Store, error) {
	if app.cfg.Audit.StoreType != config.BackendSQLite {
		return audit.NewMemoryStore(0), nil
	}
	store, err := audit.NewSQLiteStore(ctx, app.cfg.Audit.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	app.stores = append(app.stores, store)
	app.checker.Register(health.PingCheck("audit-db", health.TypeDatabase, store, health.WithCritical(false)))
	logger.Info("audit store opened", observability.String("path", app.cfg.Audit.SQLitePath))
	return store, nil
}

// initPrincipalStore opens the configured principal source and wraps it in
// the circuit breaker when enabled.
func (app *application) initPrincipalStore(ctx context.Context, logger observability.Logger) (principal.Store, error) {
	sc := app.cfg.APIKey.Store

	var store principal.Store
	switch sc.Type {
	case config.BackendFile:
		fs, err := principal.NewFileStore(sc.File, logger)
		if err != nil {
			return nil, fmt.Errorf("load principals file: %w", err)
		}
		app.stores = append(app.stores, fs)
		if sc.Watch {
			if err := fs.Watch(ctx); err != nil {
				logger.Warn("principals file watch unavailable", observability.Error(err))
			}
		}
		store = fs
	case config.BackendSQLite:
		ss, err := principal.NewSQLiteStore(ctx, sc.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open principal database: %w", err)
		}
		app.stores = append(app.stores, ss)
		now := time.Now()
		for _, spec := range sc.Principals {
			if err := ss.Put(ctx, principal.FromSpec(spec, now)); err != nil {
				return nil, fmt.Errorf("seed principal %s: %w", spec.ID, err)
			}
		}
		app.checker.Register(health.PingCheck("principal-db", health.TypeDatabase, ss))
		store = ss
	case config.BackendVault:
		vs, err := principal.NewVaultStore(ctx, sc.Vault, logger)
		if err != nil {
			return nil, fmt.Errorf("load principals from vault: %w", err)
		}
		vs.Start(ctx)
		app.stores = append(app.stores, vs)
		store = vs
	default:
		store = principal.NewMemoryStoreFromSpecs(sc.Principals)
	}

	if app.cfg.Breaker.Enabled {
		bs := principal.NewBreakerStore("principal-store", store, app.cfg.Breaker, logger)
		app.checker.Register(health.BreakerCheck("principal-store", bs.State, health.WithCritical(false)))
		store = bs
	}
	return store, nil
}

// redisClient connects to Redis and registers a readiness check for it.
func (app *application) redisClient(name string, cfg config.RedisConfig) (*redis.Client, error) {
	client, err := cache.NewRedisClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	app.caches = append(app.caches, client)
	app.checker.Register(health.RedisCheck(name, client))
	return client, nil
}

func (app *application) initAPIKey(
	ctx context.Context,
	usage *principal.UsageRegistry,
	logger observability.Logger,
) (*apikey.Strategy, error) {
	store, err := app.initPrincipalStore(ctx, logger)
	if err != nil {
		return nil, err
	}

	cacheOpts := []cache.Option[*principal.Info]{
		cache.WithClone((*principal.Info).Clone),
		cache.WithDefaultTTL[*principal.Info](app.cfg.APIKey.CacheTTL.Duration()),
		cache.WithOpTimeout[*principal.Info](app.cfg.Auth.Timeouts.Cache.Duration()),
		cache.WithLogger[*principal.Info](logger),
	}
	var c cache.ValidationCache[*principal.Info]
	if app.cfg.Cache.Type == config.BackendRedis {
		client, err := app.redisClient("principal-cache", app.cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		c = cache.NewRedis(client, app.cfg.Cache.Redis.KeyPrefix, false, cacheOpts...)
	} else {
		c = cache.NewMemory(append(cacheOpts,
			cache.WithSweepInterval[*principal.Info](app.cfg.Cache.SweepInterval.Duration()))...)
	}
	app.caches = append(app.caches, c)

	return apikey.NewStrategy(store, c,
		apikey.WithCacheTTL(app.cfg.APIKey.CacheTTL.Duration()),
		apikey.WithStoreTimeout(app.cfg.Auth.Timeouts.Store.Duration()),
		apikey.WithUsageRegistry(usage),
		apikey.WithLogger(logger),
	), nil
}

func (app *application) initJWT(
	ctx context.Context,
	usage *principal.UsageRegistry,
	logger observability.Logger,
) (*jwt.Strategy, error) {
	jc := app.cfg.JWT
	opts := []jwt.Option{jwt.WithUsageRegistry(usage), jwt.WithLogger(logger)}

	switch {
	case jc.JWKSFile != "":
		keys, err := jwt.LoadKeySetFile(jc.JWKSFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, jwt.WithKeySet(keys))
	case jc.JWKSURL != "":
		keys, err := jwt.NewRemoteKeySet(ctx, jc.JWKSURL, jwt.DefaultKeySetRefresh)
		if err != nil {
			return nil, err
		}
		opts = append(opts, jwt.WithKeySet(keys))
	}

	revOpts := []cache.Option[bool]{cache.WithLogger[bool](logger)}
	var revCache cache.ValidationCache[bool]
	if app.cfg.Revocation.Type == config.BackendRedis {
		rc := app.cfg.Revocation.Redis
		if rc.URL == "" {
			rc.URL = app.cfg.Cache.Redis.URL
		}
		client, err := app.redisClient("revocation-list", rc)
		if err != nil {
			return nil, err
		}
		revCache = cache.NewRedis(client, rc.KeyPrefix, false, revOpts...)
	} else {
		revCache = cache.NewMemory(append(revOpts,
			cache.WithSweepInterval[bool](app.cfg.Cache.SweepInterval.Duration()))...)
	}
	app.caches = append(app.caches, revCache)
	opts = append(opts, jwt.WithRevocationStore(jwt.NewRevocationStore(revCache)))

	return jwt.NewStrategy(jc, opts...)
}

func (app *application) initAlerts(store audit.Store, logger observability.Logger) (*alert.Engine, error) {
	ac := app.cfg.Alert

	sinks := alert.MultiSink{alert.NewLogSink(logger)}
	if ac.Kafka.Enabled {
		kafka, err := alert.NewKafkaSink(ac.Kafka, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafka)
	}
	app.sinks = append(app.sinks, sinks)

	engine := alert.NewEngine(store, sinks, ac,
		alert.WithEngineLogger(logger),
		alert.WithEngineMetrics(alert.NewMetrics(app.registry)),
	)
	scheduler, err := alert.NewScheduler(engine, ac.Schedule, logger)
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	app.schedulers = append(app.schedulers, scheduler)
	return engine, nil
}
