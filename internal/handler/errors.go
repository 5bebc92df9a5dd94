package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
	"remittance-engine/pkg/logger"
	"remittance-engine/pkg/response"
)

// respondError maps a service error onto the response envelope
func respondError(c *gin.Context, log logrus.FieldLogger, err error, message string) {
	log = logger.FromContext(c.Request.Context(), log).WithError(err)

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		log.Warn(message)
		response.BadRequest(c, message, err.Error())
	case domain.IsNotFound(err):
		log.Info(message)
		response.NotFound(c, err.Error())
	case domain.IsConcurrencyConflict(err):
		log.Warn(message)
		response.Conflict(c, message, err.Error())
	case domain.IsInconsistentState(err):
		log.Warn(message)
		response.InconsistentState(c, message, err.Error())
	default:
		log.Error(message)
		response.InternalError(c, message, err.Error())
	}
}
