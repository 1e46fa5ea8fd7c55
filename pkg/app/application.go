package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/lock"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/metrics"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/middleware"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/providers"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/repository"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/services"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/tracing"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/auth"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/pkg/config"

	"github.com/gin-gonic/gin"
)

type Application struct {
	Config      *config.Config
	Engine      *gin.Engine
	Reconciler  services.CatalogReconciler
	LocalReader services.LocalSnapshotReader
	Store       repository.SnapshotStore
	Logger      *slog.Logger
	Creds       auth.CredentialSource
	Catalog     providers.RemoteTaskCatalog

	// TracingShutdown flushes the trace exporter; no-op when tracing is off.
	TracingShutdown func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithCredentialSource sets a custom credential source
func WithCredentialSource(creds auth.CredentialSource) ApplicationOption {
	return func(app *Application) error {
		app.Creds = creds
		return nil
	}
}

// WithCatalog sets a custom remote catalog
func WithCatalog(catalog providers.RemoteTaskCatalog) ApplicationOption {
	return func(app *Application) error {
		app.Catalog = catalog
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "snapshots", "env", cfg.Env)
	slog.SetDefault(logger)

	store := repository.NewSnapshotStore(cfg.StoreRoot)
	metrics.RegisterStoreCollector(store, logger)

	tracingShutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  cfg.TracingServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}

	app := &Application{
		Config:          cfg,
		Store:           store,
		Logger:          logger,
		TracingShutdown: tracingShutdown,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.Creds == nil {
		creds, err := credentialSource(cfg)
		if err != nil {
			return nil, err
		}
		app.Creds = creds
	}
	if app.Catalog == nil {
		timeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
		app.Catalog = providers.NewCatalog(cfg.TenantURL, app.Creds, timeout, logger)
	}

	var locks lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
		locks = lock.NewRedisLocker(redisClient, time.Duration(cfg.LockTTLSeconds)*time.Second)
	}

	fetcher := services.NewSnapshotFetcher(app.Catalog, store, locks, logger, time.Now)
	app.Reconciler = services.NewCatalogReconciler(app.Catalog, fetcher, store, logger, time.Now)
	app.LocalReader = services.NewLocalSnapshotReader(store, logger)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.TracingMiddleware(cfg.TracingServiceName),
	)
	app.Engine = engine

	return app, nil
}

// credentialSource builds the tenant credential source declared in config.
// The provider registry owns the concrete types; this only shapes the config
// into the provider's expected JSON.
func credentialSource(cfg *config.Config) (auth.CredentialSource, error) {
	var raw json.RawMessage
	switch cfg.AuthProvider {
	case "oauth":
		b, err := json.Marshal(map[string]any{
			"tenantUrl":    cfg.TenantURL,
			"clientId":     cfg.ClientID,
			"clientSecret": cfg.ClientSecret,
		})
		if err != nil {
			return nil, err
		}
		raw = b
	case "static":
		b, err := json.Marshal(map[string]any{"apiKey": cfg.APIKey})
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.AuthProvider)
	}
	return auth.NewSource(auth.ProviderConfig{Type: cfg.AuthProvider, Config: raw})
}
