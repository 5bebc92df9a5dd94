package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
	"remittance-engine/internal/service"
	"remittance-engine/pkg/response"
)

type CandidateHandler struct {
	service service.ReconciliationService
	logger  logrus.FieldLogger
}

func NewCandidateHandler(service service.ReconciliationService, logger logrus.FieldLogger) *CandidateHandler {
	return &CandidateHandler{service: service, logger: logger}
}

type ListCandidatesRequest struct {
	BankAccount string `form:"bank_account" binding:"required"`
	Company     string `form:"company"`
	Amount      string `form:"amount" binding:"required"`
	Kinds       string `form:"kinds" binding:"required"`
	ExactMatch  bool   `form:"exact_match"`
	FromDate    string `form:"from_date"`
	ToDate      string `form:"to_date"`
	Party       string `form:"party"`
}

// ListCandidates godoc
// @Summary List match candidates
// @Description List vouchers that could settle a bank transaction amount, grouped by kind in the requested order
// @Tags candidates
// @Produce json
// @Param bank_account query string true "Company bank account"
// @Param company query string false "Company"
// @Param amount query string true "Transaction amount"
// @Param kinds query string true "Comma separated voucher kinds, e.g. Remittance,Payment Entry"
// @Param exact_match query bool false "Only return exact amount matches"
// @Param from_date query string false "From date (YYYY-MM-DD)"
// @Param to_date query string false "To date (YYYY-MM-DD)"
// @Param party query string false "Party"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/candidates [get]
func (h *CandidateHandler) ListCandidates(c *gin.Context) {
	var req ListCandidatesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.BadRequest(c, "Invalid amount", err.Error())
		return
	}

	q := domain.CandidateQuery{
		BankAccount: req.BankAccount,
		Company:     req.Company,
		Amount:      amount,
		ExactMatch:  req.ExactMatch,
		Party:       req.Party,
	}
	for _, raw := range strings.Split(req.Kinds, ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		kind, err := domain.ParseVoucherKind(raw)
		if err != nil {
			response.BadRequest(c, "Invalid voucher kind", err.Error())
			return
		}
		q.Kinds = append(q.Kinds, kind)
	}

	if q.FromDate, err = parseOptionalDate(req.FromDate); err != nil {
		response.BadRequest(c, "Invalid from_date format", "Use YYYY-MM-DD format")
		return
	}
	if q.ToDate, err = parseOptionalDate(req.ToDate); err != nil {
		response.BadRequest(c, "Invalid to_date format", "Use YYYY-MM-DD format")
		return
	}

	candidates, err := h.service.ListCandidates(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list candidates")
		return
	}

	response.Success(c, http.StatusOK, "Candidates retrieved successfully", candidates)
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
