package matcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
)

// CandidateEngine builds ranked candidate lists for a bank transaction. One
// retrieval query runs per requested kind, on a bounded worker pool.
type CandidateEngine struct {
	source   domain.CandidateRepository
	strategy RankingStrategy
	pool     *ants.Pool
	logger   logrus.FieldLogger
}

func NewCandidateEngine(source domain.CandidateRepository, strategy RankingStrategy, poolSize int, logger logrus.FieldLogger) (*CandidateEngine, error) {
	if strategy == nil {
		strategy = &ExactAmountStrategy{}
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create candidate pool: %w", err)
	}
	return &CandidateEngine{
		source:   source,
		strategy: strategy,
		pool:     pool,
		logger:   logger,
	}, nil
}

type kindResult struct {
	candidates []domain.MatchCandidate
	err        error
}

// FindCandidates returns candidates grouped by kind in the order the caller
// listed the kinds. Within a kind, rank descends and the source's own
// ordering breaks ties. No match is not an error. A negative amount is
// matched by its magnitude, the same way a bank transaction's amount is.
func (e *CandidateEngine) FindCandidates(ctx context.Context, q domain.CandidateQuery) ([]domain.MatchCandidate, error) {
	q.Amount = q.Amount.Abs()
	if err := ValidateCandidateQuery(q); err != nil {
		return nil, err
	}

	start := time.Now()
	kinds := uniqueKinds(q.Kinds)
	results := make([]kindResult, len(kinds))

	var wg sync.WaitGroup
	for i, kind := range kinds {
		i, kind := i, kind
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			rows, err := e.source.QueryCandidates(ctx, kind, q)
			results[i] = kindResult{candidates: rows, err: err}
		})
		if err != nil {
			wg.Done()
			results[i] = kindResult{err: fmt.Errorf("failed to schedule %s query: %w", kind, err)}
		}
	}
	wg.Wait()

	out := make([]domain.MatchCandidate, 0)
	for i, res := range results {
		if res.err != nil {
			e.logger.WithError(res.err).WithField("voucher_kind", kinds[i]).Error("Candidate query failed")
			return nil, fmt.Errorf("candidate query for %s failed: %w", kinds[i], res.err)
		}
		out = append(out, e.rankKind(res.candidates, q)...)
	}

	e.logger.WithFields(logrus.Fields{
		"bank_account": q.BankAccount,
		"company":      q.Company,
		"amount":       q.Amount.String(),
		"kinds":        len(kinds),
		"candidates":   len(out),
		"latency_ms":   time.Since(start).Milliseconds(),
	}).Debug("Candidates resolved")

	return out, nil
}

// rankKind re-applies the strategy to one kind's rows so every source obeys
// the same rank and exactness rule, then orders by rank keeping source order
// among equals
func (e *CandidateEngine) rankKind(rows []domain.MatchCandidate, q domain.CandidateQuery) []domain.MatchCandidate {
	ranked := make([]domain.MatchCandidate, 0, len(rows))
	for _, c := range rows {
		if !e.strategy.Qualifies(c.Amount, q.Amount, q.ExactMatch) {
			continue
		}
		c.Rank = e.strategy.Rank(c.Amount, q.Amount)
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rank > ranked[j].Rank
	})
	return ranked
}

// Release stops the worker pool
func (e *CandidateEngine) Release() {
	e.pool.Release()
}

// ValidateCandidateQuery checks the parameters common to every kind
func ValidateCandidateQuery(q domain.CandidateQuery) error {
	if len(q.Kinds) == 0 {
		return domain.ErrNoVoucherKinds
	}
	for _, k := range q.Kinds {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown voucher kind %q", domain.ErrInvalidInput, k)
		}
	}
	if !q.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if q.FromDate != nil && q.ToDate != nil && q.FromDate.After(*q.ToDate) {
		return domain.ErrInvalidDateRange
	}
	return nil
}

func uniqueKinds(kinds []domain.VoucherKind) []domain.VoucherKind {
	seen := make(map[domain.VoucherKind]bool, len(kinds))
	out := make([]domain.VoucherKind, 0, len(kinds))
	for _, k := range kinds {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
