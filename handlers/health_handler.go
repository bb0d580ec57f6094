package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Health reports liveness with the current UTC time
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
