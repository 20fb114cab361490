package service

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

// registerWorkflowValidations installs the workflow enum rules on validate, creating one when nil.
func registerWorkflowValidations(validate *validator.Validate) *validator.Validate {
	if validate == nil {
		validate = validator.New()
	}
	_ = validate.RegisterValidation("identity_number", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if len(value) != 11 {
			return false
		}
		for _, r := range value {
			if !unicode.IsDigit(r) {
				return false
			}
		}
		return true
	})
	_ = validate.RegisterValidation("request_status", func(fl validator.FieldLevel) bool {
		return models.RequestStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = validate.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		return models.TaskStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = validate.RegisterValidation("task_priority", func(fl validator.FieldLevel) bool {
		return models.TaskPriority(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = validate.RegisterValidation("approval_status", func(fl validator.FieldLevel) bool {
		return models.ApprovalStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		return models.UserRole(strings.ToLower(fl.Field().String())).Valid()
	})
	return validate
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
