package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/cogcall/internal/batch"
	"github.com/vietddude/cogcall/internal/core/config"
	"github.com/vietddude/cogcall/internal/core/worker"
	"github.com/vietddude/cogcall/internal/health"
	redisclient "github.com/vietddude/cogcall/internal/infra/redis"
	"github.com/vietddude/cogcall/internal/infra/rpc"
	"github.com/vietddude/cogcall/internal/infra/storage"
	"github.com/vietddude/cogcall/internal/infra/storage/memory"
	"github.com/vietddude/cogcall/internal/infra/storage/postgres"
	"github.com/vietddude/cogcall/internal/metering"
	"github.com/vietddude/cogcall/internal/services/language"
	"github.com/vietddude/cogcall/internal/services/openai"
	"github.com/vietddude/cogcall/internal/services/translator"
	"github.com/vietddude/cogcall/internal/services/vision"
)

// App wires the client, its collaborators and the service wrappers from
// configuration.
type App struct {
	cfg *config.AppConfig

	Router  *rpc.Router
	Client  *rpc.Client
	Records storage.CallRecordRepository
	Batch   *batch.Runner

	Language   *language.Service
	Translator *translator.Service
	Vision     *vision.Service
	OpenAI     *openai.Service

	collector    *metering.Collector
	pruner       *worker.Pruner
	db           *postgres.DB
	redisClient  *redisclient.Client
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.db = db
		a.Records = postgres.NewCallRecordRepo(db)
		a.log.Info("Using PostgreSQL storage")
	} else {
		a.Records = memory.NewCallRecordRepo()
		a.log.Debug("Using memory storage")
	}

	a.collector = metering.NewCollector(a.Records, cfg.Metering.BatchSize, cfg.Metering.FlushInterval)
	if cfg.Metering.Retention > 0 {
		a.pruner = worker.NewPruner(cfg.Metering.Retention, a.Records)
	}

	// 2. Response cache
	cache := a.newCache()

	// 3. Providers
	a.Router = rpc.NewRouter()
	if err := a.registerProviders(); err != nil {
		_ = a.Router.Close()
		if a.redisClient != nil {
			_ = a.redisClient.Close()
		}
		if a.db != nil {
			_ = a.db.Close()
		}
		return nil, err
	}

	// 4. Client
	prices := cfg.Pricing.PriceTable()
	clientCfg := rpc.ClientConfig{
		Retry:    cfg.Retry,
		Prices:   &prices,
		Cache:    cache,
		CacheTTL: cfg.Cache.TTL,
		Recorder: a.collector,
	}
	if cfg.Budget.DailyLimit > 0 {
		clientCfg.Budget = rpc.NewDailyBudget(cfg.Budget.DailyLimit)
	}
	a.Client = rpc.NewClient(a.Router, clientCfg)

	// 5. Services
	a.Language = language.New(a.Client)
	a.Language.Cache = cache != nil
	a.Translator = translator.New(a.Client)
	a.Vision = vision.New(a.Client)
	a.OpenAI = openai.New(a.Client, cfg.Services.OpenAI.Deployment)
	a.Batch = batch.NewRunner(cfg.Batch)

	// 6. Health
	a.healthMon = health.NewMonitor(a.Router)
	if a.db != nil {
		a.healthMon.AddCheck("database", a.db)
	}
	if a.redisClient != nil {
		a.healthMon.AddCheck("redis", a.redisClient)
	}
	a.healthServer = health.NewServer(a.healthMon, a.Client, cfg.Server.Port)

	return a, nil
}

func (a *App) newCache() rpc.ResponseCache {
	switch a.cfg.Cache.Backend {
	case "memory":
		a.log.Debug("Using memory response cache", "max_entries", a.cfg.Cache.MaxEntries)
		return memory.NewCache(a.cfg.Cache.MaxEntries)
	case "redis":
		if a.cfg.Redis.URL == "" {
			a.log.Warn("Redis cache selected without redis.url, caching disabled")
			return nil
		}
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			a.log.Warn("Failed to connect to Redis, caching disabled", "error", err)
			return nil
		}
		a.redisClient = client
		return client
	default:
		return nil
	}
}

func (a *App) registerProviders() error {
	services := []struct {
		name       string
		cfg        config.ServiceConfig
		authHeader string
	}{
		{"language", a.cfg.Services.Language, ""},
		{"translator", a.cfg.Services.Translator, ""},
		{"vision", a.cfg.Services.Vision, ""},
		{"openai", a.cfg.Services.OpenAI, openai.AuthHeader},
	}

	for _, svc := range services {
		if !svc.cfg.Enabled() {
			continue
		}

		endpoints := append([]config.EndpointConfig{{
			Name:     "primary",
			Endpoint: svc.cfg.Endpoint,
			Key:      svc.cfg.Key,
			Region:   svc.cfg.Region,
		}}, svc.cfg.Secondary...)

		for i, ep := range endpoints {
			name := ep.Name
			if name == "" {
				name = fmt.Sprintf("secondary-%d", i)
			}
			if ep.Key == "" {
				ep.Key = svc.cfg.Key
			}
			if ep.Transport == "" {
				ep.Transport = svc.cfg.Transport
			}

			hc := providerConfig(a.cfg, svc.cfg, ep, name, svc.authHeader)
			if ep.Transport != config.TransportGRPC {
				a.Router.AddProvider(svc.name, rpc.NewHTTPProvider(hc))
				continue
			}

			p, err := rpc.NewGRPCProvider(rpc.GRPCConfig{
				Name:           hc.Name,
				Endpoint:       hc.Endpoint,
				APIKey:         hc.APIKey,
				APIVersion:     hc.APIVersion,
				Timeout:        hc.Timeout,
				MaxPayloadSize: hc.MaxPayloadSize,
				GatewayMethod:  svc.cfg.GatewayMethod,
			})
			if err != nil {
				return fmt.Errorf("service %s endpoint %s: %w", svc.name, name, err)
			}
			a.Router.AddProvider(svc.name, p)
		}
		a.log.Info("Service configured", "service", svc.name, "endpoints", len(endpoints), "transport", svc.cfg.Transport)
	}
	return nil
}

func providerConfig(app *config.AppConfig, svc config.ServiceConfig, ep config.EndpointConfig, name, authHeader string) rpc.HTTPConfig {
	timeout := svc.Timeout
	if timeout == 0 {
		timeout = app.Executor.Timeout
	}
	maxPayload := svc.MaxPayloadSize
	if maxPayload == 0 {
		maxPayload = app.Executor.MaxPayloadSize
	}

	return rpc.HTTPConfig{
		Name:            name,
		Endpoint:        ep.Endpoint,
		APIKey:          ep.Key,
		AuthHeader:      authHeader,
		Region:          ep.Region,
		APIVersion:      svc.APIVersion,
		Timeout:         timeout,
		MaxPayloadSize:  maxPayload,
		MaxResponseSize: app.Executor.MaxResponseSize,
	}
}

// Start starts background workers: the metering collector, the pruner and
// the database metrics collector.
func (a *App) Start(ctx context.Context) {
	go a.collector.Start(ctx)

	if a.pruner != nil {
		a.log.Info("Starting pruner", "retention", a.cfg.Metering.Retention, "interval", a.pruner.Interval())
		go a.pruner.Start(ctx)
	}

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}
}

// Serve runs the health and usage server until it is stopped.
func (a *App) Serve() error {
	a.log.Info("Health server listening", "port", a.cfg.Server.Port)
	if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop flushes pending call records and releases every connection.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	if err := a.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}

	a.collector.Stop()

	if err := a.Router.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Health returns the current health report.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}
