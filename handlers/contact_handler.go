package handlers

import (
	"errors"

	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/services"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ContactHandler struct {
	Service *services.ContactService
}

func NewContactHandler(service *services.ContactService) *ContactHandler {
	return &ContactHandler{Service: service}
}

func (h *ContactHandler) SubmitContact(c *fiber.Ctx) error {
	var input models.ContactInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid contact data",
			"details": []services.FieldViolation{{
				Field:   "",
				Rule:    "body",
				Message: "Request body must be a JSON object",
			}},
		})
	}

	msg, err := h.Service.SubmitContact(c.UserContext(), input)
	if err != nil {
		var serviceErr *shared.ServiceError
		if errors.As(err, &serviceErr) && serviceErr.GetCategory() == shared.ErrorCategoryValidation {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid contact data",
				"details": serviceErr.Details,
			})
		}
		logrus.WithError(err).Error("Error saving contact")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to send message",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Contact message sent successfully",
		"id":      msg.ID,
	})
}
