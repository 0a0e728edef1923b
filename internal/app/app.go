// Package app wires the store, services, pipeline and HTTP router from a
// loaded configuration. Both the API server and the CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/stwalsh4118/urbex/api/internal/acquisition"
	"github.com/stwalsh4118/urbex/api/internal/config"
	"github.com/stwalsh4118/urbex/api/internal/database"
	"github.com/stwalsh4118/urbex/api/internal/geocode"
	"github.com/stwalsh4118/urbex/api/internal/handlers"
	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/metrics"
	"github.com/stwalsh4118/urbex/api/internal/middleware"
	"github.com/stwalsh4118/urbex/api/internal/pipeline"
	"github.com/stwalsh4118/urbex/api/internal/repository"
	"github.com/stwalsh4118/urbex/api/internal/services"
)

// App holds the long-lived components of a process.
type App struct {
	Config     *config.Config
	Log        *logger.Logger
	DB         *database.Database
	Store      repository.Store
	Metrics    *metrics.Metrics
	Upserts    *services.UpsertService
	Properties services.PropertyService
	Runner     *pipeline.Runner

	// Geocoder is nil when geocoding is disabled.
	Geocoder *geocode.Cache
}

// New opens and migrates the configured store and builds every service on
// top of it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	m := metrics.New()
	gc, err := geocode.New(cfg.Geocoder, m)
	switch {
	case errors.Is(err, geocode.ErrDisabled):
		gc = nil
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to create geocoder: %w", err)
	}

	store := repository.NewStore(db)
	upserts := services.NewUpsertService(store, log, services.WithMetrics(m))

	log.Info("Store ready", map[string]interface{}{
		"driver":   db.Driver,
		"geocoder": cfg.Geocoder.Provider,
		"sources":  len(cfg.Sources),
	})

	return &App{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Store:      store,
		Metrics:    m,
		Upserts:    upserts,
		Properties: services.NewPropertyService(store, log),
		Runner: pipeline.NewRunner(store, upserts, log,
			pipeline.WithConcurrency(cfg.Pipeline.Concurrency),
			pipeline.WithMetrics(m),
		),
		Geocoder: gc,
	}, nil
}

// Close releases the store.
func (a *App) Close() {
	a.DB.Close()
}

// Sources returns the configured acquisition sources, followed by the
// geocoding enrichment source when a geocoder is configured.
func (a *App) Sources() ([]acquisition.Source, error) {
	sources, err := acquisition.FromConfig(
		a.Config.Sources,
		acquisition.PolicyFromConfig(a.Config.Acquisition),
		a.Log,
		a.Metrics,
	)
	if err != nil {
		return nil, err
	}

	if enrich, err := a.EnrichSource(0); err == nil {
		sources = append(sources, enrich)
	}
	return sources, nil
}

// EnrichSource returns the source that geocodes stored properties lacking
// coordinates. A non-positive limit keeps the default batch size. It
// returns geocode.ErrDisabled when no geocoder is configured.
func (a *App) EnrichSource(limit int) (acquisition.Source, error) {
	if a.Geocoder == nil {
		return nil, geocode.ErrDisabled
	}

	opts := []acquisition.GeocodeOption{acquisition.WithEnrichLogger(a.Log)}
	if limit > 0 {
		opts = append(opts, acquisition.WithEnrichLimit(limit))
	}
	if a.Config.Geocoder.Provider == config.GeocoderGoogle {
		opts = append(opts, acquisition.WithStreetView(a.Config.Geocoder.APIKey))
	}
	return acquisition.NewGeocodeSource(a.Store, a.Geocoder, opts...), nil
}

// RunPipeline runs every configured source once.
func (a *App) RunPipeline(ctx context.Context) (*pipeline.Report, error) {
	sources, err := a.Sources()
	if err != nil {
		return nil, err
	}
	return a.Runner.Run(ctx, sources...)
}

// Router builds the HTTP API.
func (a *App) Router() *gin.Engine {
	if a.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS -> Metrics
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.Log))
	router.Use(middleware.Recovery(a.Log))
	router.Use(middleware.CORS(a.Config.CORS.Origins))
	router.Use(middleware.Metrics(a.Metrics))

	healthHandler := handlers.NewHealthHandler(a.DB, a.DB.Driver, a.Config.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/info", healthHandler.Info)
	handlers.NewPropertyHandler(a.Properties).RegisterRoutes(v1)

	return router
}

// Server wraps Router in an http.Server listening on the configured port.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", a.Config.Server.Port),
		Handler: a.Router(),
	}
}

// Scheduler returns a cron scheduler that runs the pipeline on the
// configured schedule. A run still in progress when the next one is due
// causes that tick to be skipped. It returns nil when no schedule is set.
func (a *App) Scheduler(ctx context.Context) (*cron.Cron, error) {
	spec := a.Config.Pipeline.Schedule
	if spec == "" {
		return nil, nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := a.RunPipeline(ctx); err != nil {
			a.Log.Error("Scheduled pipeline run failed", err, map[string]interface{}{
				"schedule": spec,
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline schedule %q: %w", spec, err)
	}
	return c, nil
}
