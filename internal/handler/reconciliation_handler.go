package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/service"
	"remittance-engine/pkg/logger"
	"remittance-engine/pkg/response"
)

type ReconciliationHandler struct {
	service service.ReconciliationService
	logger  logrus.FieldLogger
}

func NewReconciliationHandler(service service.ReconciliationService, logger logrus.FieldLogger) *ReconciliationHandler {
	return &ReconciliationHandler{service: service, logger: logger}
}

// Reconcile godoc
// @Summary Reconcile a bank transaction
// @Description Allocate selected vouchers to a bank transaction. Remittances are expanded into their settlement payments; a remittance that fails to expand is skipped and reported.
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param request body service.ReconcileRequest true "Reconciliation request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/reconcile [post]
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	var req service.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.FromContext(c.Request.Context(), h.logger).WithError(err).Warn("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.service.Reconcile(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err, "Reconciliation failed")
		return
	}

	response.Success(c, http.StatusOK, "Reconciliation completed successfully", result)
}
