package dto

import (
	"chainremit/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("network", validateNetwork)
	}
}

// validateNetwork accepts only the supported settlement networks.
func validateNetwork(fl validator.FieldLevel) bool {
	return domain.ValidNetwork(domain.SettlementNetwork(fl.Field().String()))
}
