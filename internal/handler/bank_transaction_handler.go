package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/service"
	"remittance-engine/pkg/response"
)

type BankTransactionHandler struct {
	service service.BankTransactionService
	logger  logrus.FieldLogger
}

func NewBankTransactionHandler(service service.BankTransactionService, logger logrus.FieldLogger) *BankTransactionHandler {
	return &BankTransactionHandler{service: service, logger: logger}
}

// GetBankTransaction godoc
// @Summary Get a bank transaction
// @Description Get a bank transaction with its allocations and derived status
// @Tags bank-transactions
// @Produce json
// @Param id path string true "Bank transaction ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/bank-transactions/{id} [get]
func (h *BankTransactionHandler) GetBankTransaction(c *gin.Context) {
	bt, err := h.service.GetBankTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get bank transaction")
		return
	}

	response.Success(c, http.StatusOK, "Bank transaction retrieved successfully", bt)
}
