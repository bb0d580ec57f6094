package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fenilmodi00/nextipo-backend/database"
	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/fenilmodi00/nextipo-backend/shared"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// FieldViolation names one invalid field of a request body
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type ContactService struct {
	Store    database.Store
	validate *validator.Validate
}

func NewContactService(store database.Store) *ContactService {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ContactService{Store: store, validate: validate}
}

// SubmitContact validates and stores a contact message. Invalid input yields a
// validation ServiceError whose Details hold the []FieldViolation.
func (s *ContactService) SubmitContact(ctx context.Context, in models.ContactInput) (*models.ContactMessage, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Message = strings.TrimSpace(in.Message)

	if violations := s.Validate(in); len(violations) > 0 {
		return nil, shared.NewServiceError(
			shared.ErrorCategoryValidation, "INVALID_CONTACT", "Invalid contact data",
			"ContactService", "SubmitContact", false, nil,
		).WithDetails(violations)
	}

	msg, err := s.Store.CreateContact(ctx, in)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "CONTACT_WRITE_FAILED", "ContactService", "SubmitContact", true)
	}

	logrus.WithFields(logrus.Fields{
		"component":  "ContactService",
		"contact_id": msg.ID,
	}).Info("Contact message stored")
	return msg, nil
}

// Validate returns the rule violations of a contact input, if any
func (s *ContactService) Validate(in models.ContactInput) []FieldViolation {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []FieldViolation{{Field: "", Rule: "invalid", Message: err.Error()}}
	}

	violations := make([]FieldViolation, 0, len(validationErrors))
	for _, fe := range validationErrors {
		violations = append(violations, FieldViolation{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: violationMessage(fe),
		})
	}
	return violations
}

func (s *ContactService) GetAllContacts(ctx context.Context) ([]models.ContactMessage, error) {
	return s.Store.GetAllContacts(ctx)
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
