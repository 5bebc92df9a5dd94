package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"remittance-engine/pkg/response"
)

func Recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					"error":          err,
					"path":           c.Request.URL.Path,
					"correlation_id": GetCorrelationID(c),
				}).Error("Panic recovered")
				response.InternalError(c, "Internal server error", "An unexpected error occurred")
				c.Abort()
			}
		}()
		c.Next()
	}
}

func ErrorHandler(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Handle any errors that were set during request processing
		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			log.WithError(err.Err).WithField("correlation_id", GetCorrelationID(c)).Error("Request error")

			// Only send error response if not already sent
			if !c.Writer.Written() {
				response.InternalError(c, "Request failed", err.Error())
			}
		}
	}
}
