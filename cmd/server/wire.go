package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shelfwatch/backend/config"
	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/infrastructure/cache"
	"github.com/shelfwatch/backend/internal/infrastructure/memstore"
	"github.com/shelfwatch/backend/internal/infrastructure/metrics"
	"github.com/shelfwatch/backend/internal/infrastructure/patternstore"
	"github.com/shelfwatch/backend/internal/infrastructure/postgres"
	"github.com/shelfwatch/backend/internal/infrastructure/provider"
	"github.com/shelfwatch/backend/internal/infrastructure/publisher"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/retailer"
	"github.com/shelfwatch/backend/internal/usecase"
)

const (
	redisCachePrefix    = "shelfwatch:cache:"
	redisPatternsPrefix = "shelfwatch:patterns:"
	redisPingTimeout    = 5 * time.Second
	cacheCleanupEvery   = time.Minute
)

// app holds the wired services shared by the serve and run commands
type app struct {
	log              logger.Logger
	registry         *retailer.Registry
	invalidRetailers map[string]error

	monitor        *usecase.MonitorService
	dispatcher     *usecase.RunDispatcher
	reviews        *usecase.ReviewService
	catalog        *usecase.CatalogService
	metricsHandler http.Handler

	closers []func() error
}

// newApp builds every dependency the configuration selects
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry, a.invalidRetailers = cfg.Registry()
	for name, reason := range a.invalidRetailers {
		log.Warn("Retailer disabled by invalid configuration",
			logger.String("retailer", name),
			logger.Error(reason),
		)
	}
	log.Info("Retailers loaded", logger.Strings("retailers", a.registry.Names()))

	store, err := a.newStore(cfg)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	needsRedis := cfg.Patterns.Type == "redis" || (cfg.Cache.Enabled && cfg.Cache.Type == "redis")
	if needsRedis {
		redisClient, err = a.newRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)
	a.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

	cascade := usecase.NewCascadeService(
		a.registry,
		a.newProviders(cfg.Collaborators),
		a.newPatternStore(cfg.Patterns, redisClient),
		a.newCache(cfg, redisClient),
		usecase.CascadeServiceConfig{
			MinValidRatio:     cfg.Extraction.MinValidRatio,
			ExploreEvery:      cfg.Extraction.ExploreEvery,
			GlobalConcurrency: cfg.Extraction.GlobalConcurrency,
			AttemptTimeout:    cfg.Extraction.AttemptTimeout,
			CacheEnabled:      cfg.Cache.Enabled,
			CacheTTL:          cfg.Cache.TTL,
			Production:        cfg.Server.IsProduction(),
		},
		m,
		log.With(logger.String("component", "cascade")),
	)

	resolver := usecase.NewResolverService(usecase.NewMatchingService(usecase.MatchConfig{}))

	a.monitor = usecase.NewMonitorService(
		store,
		a.registry,
		cascade,
		resolver,
		usecase.MonitorServiceConfig{
			ResolveConcurrency: cfg.Extraction.ResolveConcurrency,
			DetailConcurrency:  cfg.Extraction.DetailConcurrency,
		},
		m,
		log.With(logger.String("component", "monitor")),
	)
	a.dispatcher = usecase.NewRunDispatcher(a.monitor, log.With(logger.String("component", "dispatcher")))
	a.closers = append(a.closers, func() error {
		a.dispatcher.Close()
		return nil
	})

	a.reviews = usecase.NewReviewService(
		store,
		a.registry,
		cascade,
		resolver,
		a.newPublisher(cfg.Collaborators.Publisher),
		a.dispatcher,
		m,
		log.With(logger.String("component", "review")),
	)
	a.catalog = usecase.NewCatalogService(store, cascade.Learner(), log.With(logger.String("component", "catalog")))

	return a, nil
}

func (a *app) newStore(cfg *config.Config) (domain.Store, error) {
	if cfg.Store.Type != "postgres" {
		a.log.Warn("Using in-memory store; canonical products are lost on restart")
		return memstore.New(), nil
	}

	db, err := postgres.NewConnection(cfg.Database.DSN(), cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	a.log.Info("Connected to PostgreSQL",
		logger.String("host", cfg.Database.Host),
		logger.String("database", cfg.Database.Name),
	)
	return postgres.NewStore(db), nil
}

func (a *app) newRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.closers = append(a.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	a.log.Info("Connected to Redis", logger.String("addr", cfg.Addr))
	return client, nil
}

func (a *app) newCache(cfg *config.Config, client *redis.Client) domain.CacheRepository {
	if !cfg.Cache.Enabled {
		return nil
	}
	a.log.Info("Extraction cache enabled",
		logger.String("type", cfg.Cache.Type),
		logger.Duration("ttl", cfg.Cache.TTL),
	)
	if cfg.Cache.Type == "redis" {
		return cache.NewRedisCache(client, redisCachePrefix)
	}
	c := cache.NewMemoryCache(cacheCleanupEvery)
	a.closers = append(a.closers, c.Close)
	return c
}

func (a *app) newPatternStore(cfg config.PatternsConfig, client *redis.Client) domain.PatternStore {
	if cfg.Type == "redis" {
		return patternstore.NewRedisStore(client, redisPatternsPrefix)
	}
	return patternstore.NewMemoryStore()
}

// newProviders registers the static HTML provider always and the hosted
// collaborators only when they have an endpoint
func (a *app) newProviders(cfg config.CollaboratorsConfig) []domain.Provider {
	providers := []domain.Provider{
		provider.NewStaticHTML(providerConfig(cfg.StaticHTML), a.registry, a.log),
	}
	if cfg.JSONAPI.BaseURL != "" {
		providers = append(providers, provider.NewJSONAPI(providerConfig(cfg.JSONAPI), a.registry, a.log))
	} else {
		a.log.Warn("JSON API provider not configured")
	}
	if cfg.Browser.BaseURL != "" {
		providers = append(providers, provider.NewBrowser(providerConfig(cfg.Browser), a.registry, a.log))
	} else {
		a.log.Warn("Browser provider not configured")
	}
	return providers
}

func (a *app) newPublisher(cfg config.CollaboratorConfig) domain.Publisher {
	if cfg.BaseURL == "" {
		a.log.Warn("Publisher not configured; assessed products stay unpublished")
		return nil
	}
	return publisher.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, a.log)
}

func providerConfig(c config.CollaboratorConfig) provider.Config {
	return provider.Config{
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		Timeout:           c.Timeout,
		Cost:              c.Cost,
		RequestsPerSecond: c.RequestsPerSecond,
		UserAgent:         c.UserAgent,
	}
}

// Close stops background runs first, then releases connections in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Shutdown step failed", logger.Error(err))
		}
	}
	a.closers = nil
}
