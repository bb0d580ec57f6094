package handlers

import (
	"errors"
	"strconv"

	"github.com/fenilmodi00/nextipo-backend/jobs"
	"github.com/fenilmodi00/nextipo-backend/services"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type IPOHandler struct {
	Service     *services.IPOService
	SyncJob     *jobs.IPOSyncJob
	SyncLimiter *shared.RequestRateLimiter
}

func NewIPOHandler(service *services.IPOService, syncJob *jobs.IPOSyncJob, syncLimiter *shared.RequestRateLimiter) *IPOHandler {
	return &IPOHandler{
		Service:     service,
		SyncJob:     syncJob,
		SyncLimiter: syncLimiter,
	}
}

// GetIPOs lists IPOs; ?search= takes precedence over ?status=
func (h *IPOHandler) GetIPOs(c *fiber.Ctx) error {
	ipos, err := h.Service.GetIPOs(c.UserContext(), c.Query("search"), c.Query("status"))
	if err != nil {
		logrus.WithError(err).Error("Error fetching IPOs")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch IPO data",
		})
	}
	return c.JSON(ipos)
}

func (h *IPOHandler) GetIPOStats(c *fiber.Ctx) error {
	stats, err := h.Service.GetIPOStats(c.UserContext())
	if err != nil {
		logrus.WithError(err).Error("Error fetching IPO stats")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch IPO statistics",
		})
	}
	return c.JSON(stats)
}

func (h *IPOHandler) GetIPOByID(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "IPO not found",
		})
	}

	ipo, err := h.Service.GetIPOByID(c.UserContext(), id)
	if err != nil {
		logrus.WithError(err).WithField("ipo_id", id).Error("Error fetching IPO")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch IPO",
		})
	}
	if ipo == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "IPO not found",
		})
	}
	return c.JSON(ipo)
}

// SyncIPOs runs a sync on demand, throttled and never overlapping another run
func (h *IPOHandler) SyncIPOs(c *fiber.Ctx) error {
	if h.SyncLimiter != nil && !h.SyncLimiter.Allow() {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many sync requests, try again later",
		})
	}

	logrus.Info("Manual IPO sync triggered via API")
	report, err := h.SyncJob.Run(c.UserContext())
	if errors.Is(err, jobs.ErrJobRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "IPO sync already in progress",
		})
	}
	if err != nil {
		logrus.WithError(err).Error("Error syncing IPO data")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to sync IPO data",
		})
	}

	return c.JSON(fiber.Map{
		"message": "IPO data synced successfully",
		"report":  report,
	})
}
