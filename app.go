package main

import (
	"context"
	"database/sql"

	"github.com/fenilmodi00/nextipo-backend/config"
	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/handlers"
	"github.com/fenilmodi00/nextipo-backend/jobs"
	"github.com/fenilmodi00/nextipo-backend/services"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// application holds every long-lived component built from one Config
type application struct {
	cfg   *config.Config
	store database.Store
	db    *sql.DB // nil with the in-memory store

	ipoService     *services.IPOService
	contactService *services.ContactService
	premiumService *services.PremiumFeedService

	syncJob     *jobs.IPOSyncJob
	premiumJob  *jobs.PremiumRefreshJob
	syncLimiter *shared.RequestRateLimiter
}

// openStore picks Postgres when a database URL is configured, memory otherwise
func openStore(ctx context.Context, cfg *config.Config) (database.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		logrus.Info("DATABASE_URL not set, using in-memory store")
		return database.NewMemoryStore(), nil, nil
	}

	db, err := database.ConnectWithConfig(cfg.DatabaseURL, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return database.NewPostgresStore(db), db, nil
}

func newApplication(cfg *config.Config, store database.Store, db *sql.DB, source services.IPOSource) *application {
	ipoService := services.NewIPOService(store, source, cfg.Sync.Strategy)
	premiumService := services.NewPremiumFeedService(store, cfg.PremiumFeed)

	return &application{
		cfg:            cfg,
		store:          store,
		db:             db,
		ipoService:     ipoService,
		contactService: services.NewContactService(store),
		premiumService: premiumService,
		syncJob:        jobs.NewIPOSyncJob(ipoService),
		premiumJob:     jobs.NewPremiumRefreshJob(premiumService),
		syncLimiter:    shared.NewPerMinuteRateLimiter("ipo-sync-trigger", cfg.Sync.TriggersPerMinute),
	}
}

// startJobs schedules the startup sync and the periodic jobs until ctx is done
func (a *application) startJobs(ctx context.Context) {
	a.syncJob.Start(ctx, a.cfg.Sync.OnStartup, a.cfg.Sync.StartupDelay, a.cfg.Sync.Interval)
	a.premiumJob.Start(ctx, a.cfg.PremiumFeed.RefreshInterval)
}

func (a *application) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "nextipo-backend",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	ipoHandler := handlers.NewIPOHandler(a.ipoService, a.syncJob, a.syncLimiter)
	contactHandler := handlers.NewContactHandler(a.contactService)
	adminHandler := handlers.NewAdminHandler(a.contactService, a.premiumJob)
	performanceHandler := handlers.NewPerformanceHandler(a.store, a.db, a.syncJob, a.syncLimiter,
		a.ipoService.Metrics, a.premiumService.Metrics)

	api := app.Group("/api")

	// IPO Routes
	api.Get("/ipos", ipoHandler.GetIPOs)
	api.Get("/ipos/stats", ipoHandler.GetIPOStats)
	api.Get("/ipos/:id", ipoHandler.GetIPOByID)
	api.Post("/ipos/sync", ipoHandler.SyncIPOs)

	api.Post("/contact", contactHandler.SubmitContact)
	api.Get("/health", handlers.Health)

	// Admin Routes
	admin := api.Group("/admin", handlers.RequireAdminToken(a.cfg.AdminToken))
	admin.Get("/contacts", adminHandler.GetContacts)
	admin.Post("/premium/refresh", adminHandler.TriggerPremiumRefresh)
	admin.Get("/metrics", performanceHandler.GetPerformanceMetrics)

	return app
}

func (a *application) Close() error {
	return a.store.Close()
}
