package handlers

import (
	"database/sql"

	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/jobs"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/gofiber/fiber/v2"
)

type PerformanceHandler struct {
	Store       database.Store
	DB          *sql.DB // nil with the in-memory store
	SyncJob     *jobs.IPOSyncJob
	SyncLimiter *shared.RequestRateLimiter
	Metrics     []*shared.ServiceMetrics
}

func NewPerformanceHandler(store database.Store, db *sql.DB, syncJob *jobs.IPOSyncJob, syncLimiter *shared.RequestRateLimiter, metrics ...*shared.ServiceMetrics) *PerformanceHandler {
	return &PerformanceHandler{
		Store:       store,
		DB:          db,
		SyncJob:     syncJob,
		SyncLimiter: syncLimiter,
		Metrics:     metrics,
	}
}

// GetPerformanceMetrics reports service run metrics, store size and pool stats
func (h *PerformanceHandler) GetPerformanceMetrics(c *fiber.Ctx) error {
	counts, err := h.Store.Counts(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read store counts",
		})
	}

	services := make([]shared.MetricsSnapshot, 0, len(h.Metrics))
	for _, m := range h.Metrics {
		services = append(services, m.Snapshot())
	}

	response := fiber.Map{
		"store":    counts,
		"services": services,
	}

	if h.SyncJob != nil {
		sync := fiber.Map{"running": h.SyncJob.IsRunning()}
		if report, lastErr := h.SyncJob.LastRun(); report != nil {
			sync["last_report"] = report
			if lastErr != nil {
				sync["last_error"] = lastErr.Error()
			}
		}
		response["sync"] = sync
	}

	if h.SyncLimiter != nil {
		response["sync_triggers"] = fiber.Map{
			"allowed": h.SyncLimiter.GetRequestCount(),
			"denied":  h.SyncLimiter.GetDeniedCount(),
		}
	}

	if h.DB != nil {
		dbStats := h.DB.Stats()
		response["database_stats"] = fiber.Map{
			"open_connections":     dbStats.OpenConnections,
			"in_use":               dbStats.InUse,
			"idle":                 dbStats.Idle,
			"wait_count":           dbStats.WaitCount,
			"wait_duration_ms":     dbStats.WaitDuration.Milliseconds(),
			"max_idle_closed":      dbStats.MaxIdleClosed,
			"max_idle_time_closed": dbStats.MaxIdleTimeClosed,
			"max_lifetime_closed":  dbStats.MaxLifetimeClosed,
		}
	}

	return c.JSON(response)
}
