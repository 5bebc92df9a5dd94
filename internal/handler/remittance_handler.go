package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/service"
	"remittance-engine/pkg/response"
)

type RemittanceHandler struct {
	service service.RemittanceService
	logger  logrus.FieldLogger
}

func NewRemittanceHandler(service service.RemittanceService, logger logrus.FieldLogger) *RemittanceHandler {
	return &RemittanceHandler{service: service, logger: logger}
}

type SyncSettlementRequest struct {
	SettlementDate string `json:"settlement_date" binding:"required"`
	BankAccount    string `json:"bank_account" binding:"required"`
}

type RecalculateTotalsRequest struct {
	RemittanceIDs []string `json:"remittance_ids" binding:"required,min=1"`
}

// GetRemittance godoc
// @Summary Get a remittance
// @Description Get a remittance with its settlement lines and totals
// @Tags remittances
// @Produce json
// @Param id path string true "Remittance ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/remittances/{id} [get]
func (h *RemittanceHandler) GetRemittance(c *gin.Context) {
	rem, err := h.service.GetRemittance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get remittance")
		return
	}

	response.Success(c, http.StatusOK, "Remittance retrieved successfully", rem)
}

// SyncSettlement godoc
// @Summary Synchronise settlement lines
// @Description Rebuild the settlement lines of a remittance so every invoice has a submitted payment at the given date and paying account
// @Tags remittances
// @Accept json
// @Produce json
// @Param id path string true "Remittance ID"
// @Param request body SyncSettlementRequest true "Settlement target"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/remittances/{id}/sync [post]
func (h *RemittanceHandler) SyncSettlement(c *gin.Context) {
	var req SyncSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	date, err := time.Parse("2006-01-02", req.SettlementDate)
	if err != nil {
		response.BadRequest(c, "Invalid settlement_date format", "Use YYYY-MM-DD format")
		return
	}

	result, err := h.service.SyncSettlement(c.Request.Context(), c.Param("id"), date, req.BankAccount)
	if err != nil {
		respondError(c, h.logger, err, "Failed to synchronise settlement")
		return
	}

	response.Success(c, http.StatusOK, "Settlement synchronised successfully", result)
}

// Unreconcile godoc
// @Summary Unreconcile a remittance
// @Description Remove every bank transaction allocation pointing at the remittance's lines and reset its localized total
// @Tags remittances
// @Produce json
// @Param id path string true "Remittance ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/remittances/{id}/unreconcile [post]
func (h *RemittanceHandler) Unreconcile(c *gin.Context) {
	result, err := h.service.Unreconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to unreconcile remittance")
		return
	}

	response.Success(c, http.StatusOK, "Remittance unreconciled successfully", result)
}

// RecomputeTotals godoc
// @Summary Recompute remittance totals
// @Description Set the declared total to the sum of the settlement lines
// @Tags remittances
// @Produce json
// @Param id path string true "Remittance ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/remittances/{id}/totals [post]
func (h *RemittanceHandler) RecomputeTotals(c *gin.Context) {
	totals, err := h.service.RecomputeTotals(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "Failed to recompute totals")
		return
	}

	response.Success(c, http.StatusOK, "Totals recomputed successfully", totals)
}

// RecalculateTotals godoc
// @Summary Recompute totals of several remittances
// @Description Recompute declared totals in bulk; failures are reported per remittance
// @Tags remittances
// @Accept json
// @Produce json
// @Param request body RecalculateTotalsRequest true "Remittance IDs"
// @Success 200 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/remittances/totals [post]
func (h *RemittanceHandler) RecalculateTotals(c *gin.Context) {
	var req RecalculateTotalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	outcomes := h.service.RecalculateTotals(c.Request.Context(), req.RemittanceIDs)
	response.Success(c, http.StatusOK, "Totals recalculated", outcomes)
}

// ListReview godoc
// @Summary List skipped items
// @Description List items skipped by sync or reconciliation for manual review, newest first
// @Tags remittances
// @Produce json
// @Param id path string true "Remittance ID"
// @Param limit query int false "Maximum number of items"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/remittances/{id}/review [get]
func (h *RemittanceHandler) ListReview(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "Invalid limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	items, err := h.service.ListReview(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list review items")
		return
	}

	response.Success(c, http.StatusOK, "Review items retrieved successfully", items)
}
