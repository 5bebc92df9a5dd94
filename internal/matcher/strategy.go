package matcher

import (
	"github.com/shopspring/decimal"

	"remittance-engine/internal/domain"
)

// RankingStrategy decides how well a voucher amount matches a transaction
type RankingStrategy interface {
	Rank(voucherAmount, transactionAmount decimal.Decimal) int
	// Qualifies reports whether a voucher may be offered at all
	Qualifies(voucherAmount, transactionAmount decimal.Decimal, exactMatch bool) bool
}

// ExactAmountStrategy ranks exact amount equality above everything else
type ExactAmountStrategy struct{}

func (s *ExactAmountStrategy) Rank(voucherAmount, transactionAmount decimal.Decimal) int {
	if voucherAmount.Equal(transactionAmount) {
		return domain.RankExactMatch
	}
	return domain.RankOther
}

func (s *ExactAmountStrategy) Qualifies(voucherAmount, transactionAmount decimal.Decimal, exactMatch bool) bool {
	if exactMatch {
		return voucherAmount.Equal(transactionAmount)
	}
	return voucherAmount.IsPositive()
}
