package handlers

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/fenilmodi00/nextipo-backend/jobs"
	"github.com/fenilmodi00/nextipo-backend/services"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	ContactService *services.ContactService
	PremiumJob     *jobs.PremiumRefreshJob
}

func NewAdminHandler(contactService *services.ContactService, premiumJob *jobs.PremiumRefreshJob) *AdminHandler {
	return &AdminHandler{
		ContactService: contactService,
		PremiumJob:     premiumJob,
	}
}

// RequireAdminToken guards a route group with a static bearer token. With no
// token configured every request is rejected.
func RequireAdminToken(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		provided := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
		if token == "" || provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			logrus.WithField("path", c.Path()).Warn("Rejected admin request")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		return c.Next()
	}
}

// GetContacts returns every contact message, newest first
func (h *AdminHandler) GetContacts(c *fiber.Ctx) error {
	contacts, err := h.ContactService.GetAllContacts(c.UserContext())
	if err != nil {
		logrus.WithError(err).Error("Error fetching contact messages")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contact messages",
		})
	}
	return c.JSON(fiber.Map{
		"data":  contacts,
		"count": len(contacts),
	})
}

// TriggerPremiumRefresh manually runs the premium refresh job
func (h *AdminHandler) TriggerPremiumRefresh(c *fiber.Ctx) error {
	if !h.PremiumJob.Service.Enabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Premium feed is not configured",
		})
	}

	logrus.Info("Manual premium refresh triggered via admin endpoint")
	startTime := time.Now()

	result, err := h.PremiumJob.Run(c.UserContext())
	if errors.Is(err, jobs.ErrJobRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Premium refresh already in progress",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to refresh premiums",
		})
	}

	return c.JSON(fiber.Map{
		"message":   "Premium refresh completed",
		"result":    result,
		"duration":  time.Since(startTime).String(),
		"timestamp": time.Now(),
	})
}
