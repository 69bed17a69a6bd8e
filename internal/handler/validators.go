package handler

import (
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the domain enum tags to gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	validators := map[string]validator.Func{
		"plan": func(fl validator.FieldLevel) bool {
			return models.Plan(fl.Field().String()).Valid()
		},
		"invoice_status": func(fl validator.FieldLevel) bool {
			return models.InvoiceStatus(fl.Field().String()).Valid()
		},
		"sub_status": func(fl validator.FieldLevel) bool {
			return models.SubscriptionStatus(fl.Field().String()).Valid()
		},
		"key_status": func(fl validator.FieldLevel) bool {
			s := models.KeyStatus(fl.Field().String())
			return s == models.KeyStatusActive || s == models.KeyStatusRevoked
		},
	}

	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}

	return nil
}
