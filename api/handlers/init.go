package handlers

import (
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/services"
)

type APIHandlers struct {
	Validation *ValidationHandler
	Admin      *AdminHandler
	Progress   *ProgressHandler
}

func InitHandlers(s *services.Services, log logger.Logger) *APIHandlers {
	return &APIHandlers{
		Validation: NewValidationHandler(s.BatchService),
		Admin:      NewAdminHandler(s.CacheService, s.CircuitBreaker),
		Progress:   NewProgressHandler(s.Notifier, s.BatchService, log),
	}
}
