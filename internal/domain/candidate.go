package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rank values attached to candidates
const (
	RankOther      = 0
	RankExactMatch = 1
)

// MatchCandidate is a voucher that could settle a bank transaction.
// Candidates are derived on every query and never stored.
type MatchCandidate struct {
	Kind        VoucherKind     `json:"kind"`
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Rank        int             `json:"rank"`
	Party       string          `json:"party,omitempty"`
	PostingDate time.Time       `json:"posting_date"`
	Currency    string          `json:"currency,omitempty"`
}

func (c MatchCandidate) Ref() VoucherRef {
	return VoucherRef{Kind: c.Kind, ID: c.ID}
}

// CandidateQuery carries the matching criteria for one bank transaction
type CandidateQuery struct {
	BankAccount string
	Company     string
	Amount      decimal.Decimal
	Kinds       []VoucherKind
	ExactMatch  bool
	FromDate    *time.Time
	ToDate      *time.Time
	Party       string
}

// InWindow reports whether d falls inside the optional date window
func (q CandidateQuery) InWindow(d time.Time) bool {
	if q.FromDate != nil && DateOnly(d).Before(DateOnly(*q.FromDate)) {
		return false
	}
	if q.ToDate != nil && DateOnly(d).After(DateOnly(*q.ToDate)) {
		return false
	}
	return true
}
