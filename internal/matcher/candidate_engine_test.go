package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remittance-engine/internal/domain"
	"remittance-engine/pkg/logger"
)

type stubSource struct {
	rows map[domain.VoucherKind][]domain.MatchCandidate
	errs map[domain.VoucherKind]error
}

func (s *stubSource) QueryCandidates(_ context.Context, kind domain.VoucherKind, _ domain.CandidateQuery) ([]domain.MatchCandidate, error) {
	if err := s.errs[kind]; err != nil {
		return nil, err
	}
	return s.rows[kind], nil
}

func candidate(kind domain.VoucherKind, id string, amount float64, day int) domain.MatchCandidate {
	return domain.MatchCandidate{
		Kind:        kind,
		ID:          id,
		Amount:      decimal.NewFromFloat(amount),
		PostingDate: time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
	}
}

func newEngine(t *testing.T, src domain.CandidateRepository) *CandidateEngine {
	t.Helper()
	engine, err := NewCandidateEngine(src, &ExactAmountStrategy{}, 2, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(engine.Release)
	return engine
}

func ids(cs []domain.MatchCandidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestExactAmountStrategy(t *testing.T) {
	s := &ExactAmountStrategy{}
	hundred := decimal.NewFromInt(100)

	assert.Equal(t, domain.RankExactMatch, s.Rank(decimal.RequireFromString("100.00"), hundred))
	assert.Equal(t, domain.RankOther, s.Rank(decimal.RequireFromString("100.01"), hundred))

	assert.True(t, s.Qualifies(decimal.NewFromInt(40), hundred, false))
	assert.False(t, s.Qualifies(decimal.Zero, hundred, false))
	assert.False(t, s.Qualifies(decimal.NewFromInt(40), hundred, true))
	assert.True(t, s.Qualifies(hundred, hundred, true))
}

func TestCandidateEngine_OrdersByKindThenRank(t *testing.T) {
	src := &stubSource{rows: map[domain.VoucherKind][]domain.MatchCandidate{
		domain.KindPaymentEntry: {
			candidate(domain.KindPaymentEntry, "PE-1", 80, 1),
			candidate(domain.KindPaymentEntry, "PE-2", 150, 2),
			candidate(domain.KindPaymentEntry, "PE-3", 90, 3),
			candidate(domain.KindPaymentEntry, "PE-4", 150, 4),
		},
		domain.KindRemittance: {
			candidate(domain.KindRemittance, "REM-1", 150, 1),
		},
	}}
	engine := newEngine(t, src)

	got, err := engine.FindCandidates(context.Background(), domain.CandidateQuery{
		BankAccount: "BA-1",
		Company:     "ACME",
		Amount:      decimal.NewFromInt(150),
		Kinds:       []domain.VoucherKind{domain.KindRemittance, domain.KindPaymentEntry},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"REM-1", "PE-2", "PE-4", "PE-1", "PE-3"}, ids(got))
	assert.Equal(t, domain.RankExactMatch, got[1].Rank)
	assert.Equal(t, domain.RankOther, got[4].Rank)
}

func TestCandidateEngine_ExactMatchDropsRankZero(t *testing.T) {
	src := &stubSource{rows: map[domain.VoucherKind][]domain.MatchCandidate{
		domain.KindPurchaseInvoice: {
			candidate(domain.KindPurchaseInvoice, "PI-1", 99.99, 1),
			candidate(domain.KindPurchaseInvoice, "PI-2", 100, 2),
		},
		domain.KindPaymentEntry: {
			candidate(domain.KindPaymentEntry, "PE-1", 100.5, 1),
		},
	}}
	engine := newEngine(t, src)
	amount := decimal.NewFromInt(100)

	got, err := engine.FindCandidates(context.Background(), domain.CandidateQuery{
		Amount:     amount,
		Kinds:      []domain.VoucherKind{domain.KindPurchaseInvoice, domain.KindPaymentEntry},
		ExactMatch: true,
	})

	require.NoError(t, err)
	require.Len(t, got, 1)
	for _, c := range got {
		assert.True(t, c.Amount.Equal(amount))
		assert.Equal(t, domain.RankExactMatch, c.Rank)
	}
}

func TestCandidateEngine_NegativeAmountMatchesMagnitude(t *testing.T) {
	src := &stubSource{rows: map[domain.VoucherKind][]domain.MatchCandidate{
		domain.KindPaymentEntry: {
			candidate(domain.KindPaymentEntry, "PE-1", 90, 1),
			candidate(domain.KindPaymentEntry, "PE-2", 150, 2),
		},
	}}
	engine := newEngine(t, src)

	got, err := engine.FindCandidates(context.Background(), domain.CandidateQuery{
		Amount: decimal.NewFromInt(-150),
		Kinds:  []domain.VoucherKind{domain.KindPaymentEntry},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"PE-2", "PE-1"}, ids(got))
	assert.Equal(t, domain.RankExactMatch, got[0].Rank)

	_, err = engine.FindCandidates(context.Background(), domain.CandidateQuery{
		Amount: decimal.Zero,
		Kinds:  []domain.VoucherKind{domain.KindPaymentEntry},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCandidateEngine_NoMatchesIsEmpty(t *testing.T) {
	engine := newEngine(t, &stubSource{})

	got, err := engine.FindCandidates(context.Background(), domain.CandidateQuery{
		Amount: decimal.NewFromInt(10),
		Kinds:  domain.VoucherKinds,
	})

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCandidateEngine_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	engine := newEngine(t, &stubSource{errs: map[domain.VoucherKind]error{domain.KindRemittance: boom}})

	_, err := engine.FindCandidates(context.Background(), domain.CandidateQuery{
		Amount: decimal.NewFromInt(10),
		Kinds:  domain.VoucherKinds,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestValidateCandidateQuery(t *testing.T) {
	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		query   domain.CandidateQuery
		wantErr error
	}{
		{
			name:    "no kinds",
			query:   domain.CandidateQuery{Amount: decimal.NewFromInt(1)},
			wantErr: domain.ErrNoVoucherKinds,
		},
		{
			name:    "zero amount",
			query:   domain.CandidateQuery{Amount: decimal.Zero, Kinds: domain.VoucherKinds},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "inverted window",
			query:   domain.CandidateQuery{Amount: decimal.NewFromInt(1), Kinds: domain.VoucherKinds, FromDate: &from, ToDate: &to},
			wantErr: domain.ErrInvalidDateRange,
		},
		{
			name:  "valid",
			query: domain.CandidateQuery{Amount: decimal.NewFromInt(1), Kinds: domain.VoucherKinds},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCandidateQuery(tt.query)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	err := ValidateCandidateQuery(domain.CandidateQuery{Amount: decimal.NewFromInt(1), Kinds: []domain.VoucherKind{"Journal Entry"}})
	assert.Error(t, err)
}
