package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
	"remittance-engine/internal/lock"
	"remittance-engine/internal/platform/messaging"
	"remittance-engine/pkg/logger"
)

type RemittanceService interface {
	GetRemittance(ctx context.Context, id string) (*domain.Remittance, error)
	SyncSettlement(ctx context.Context, id string, date time.Time, bankAccount string) (*SyncResult, error)
	Unreconcile(ctx context.Context, id string) (*UnreconcileResult, error)
	RecomputeTotals(ctx context.Context, id string) (*domain.RemittanceTotals, error)
	RecalculateTotals(ctx context.Context, ids []string) []TotalsOutcome
	ListReview(ctx context.Context, id string, limit int) ([]domain.SkippedItem, error)
}

// SyncResult reports a settlement line rebuild
type SyncResult struct {
	Remittance *domain.Remittance      `json:"remittance"`
	Lines      []domain.SettlementLine `json:"lines"`
	Unresolved []string                `json:"unresolved_invoices"`
	Skipped    []domain.SkippedItem    `json:"skipped"`
}

// UnreconcileResult lists the allocations removed from bank transactions
type UnreconcileResult struct {
	RemittanceID     string              `json:"remittance_id"`
	Removed          []domain.VoucherRef `json:"removed"`
	BankTransactions []string            `json:"bank_transactions"`
}

// TotalsOutcome is one entry of a bulk total recalculation
type TotalsOutcome struct {
	RemittanceID string                   `json:"remittance_id"`
	Totals       *domain.RemittanceTotals `json:"totals,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

type remittanceService struct {
	*aggregate
	locks   *lock.Keyed
	events  EventPublisher
	timeout time.Duration
}

func NewRemittanceService(
	store domain.Store,
	sync *SettlementSynchronizer,
	locks *lock.Keyed,
	review domain.ReviewRepository,
	events EventPublisher,
	timeout time.Duration,
	logger logrus.FieldLogger,
) RemittanceService {
	return newRemittanceService(store, sync, locks, review, events, timeout, logger)
}

func newRemittanceService(
	store domain.Store,
	sync *SettlementSynchronizer,
	locks *lock.Keyed,
	review domain.ReviewRepository,
	events EventPublisher,
	timeout time.Duration,
	logger logrus.FieldLogger,
) *remittanceService {
	return &remittanceService{
		aggregate: newAggregate(store, sync, review, logger),
		locks:     locks,
		events:    events,
		timeout:   timeout,
	}
}

func (s *remittanceService) GetRemittance(ctx context.Context, id string) (*domain.Remittance, error) {
	if id == "" {
		return nil, domain.ErrEmptyID
	}
	return s.store.Remittances().Get(ctx, id)
}

func (s *remittanceService) lockRemittance(ctx context.Context, id string) (func(), error) {
	release, err := s.locks.Acquire(ctx, remittanceKey(id))
	if err != nil {
		return nil, lockError(err, string(domain.KindRemittance), id)
	}
	return release, nil
}

// SyncSettlement rebuilds the settlement lines of a remittance at the given
// date and paying account. Both totals are set to the sum of the new lines.
func (s *remittanceService) SyncSettlement(ctx context.Context, id string, date time.Time, bankAccount string) (*SyncResult, error) {
	if id == "" || bankAccount == "" {
		return nil, domain.ErrEmptyID
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: settlement date is required", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.lockRemittance(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	rem, err := s.store.Remittances().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	target := SettlementTarget{Date: date, BankAccount: bankAccount}
	rebuilt, err := s.rebuild(ctx, rem, target, "")
	if err != nil {
		return nil, err
	}

	if err := rem.ReplaceLines(rebuilt.lines); err != nil {
		return nil, err
	}
	total := rem.LinesTotal()
	rem.DeclaredTotal = total
	rem.LocalizedTotal = total
	if err := s.store.Remittances().Save(ctx, rem); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, s.logger)
	log.WithFields(logrus.Fields{
		"remittance_id": rem.ID,
		"lines":         len(rem.Lines),
		"unresolved":    len(rebuilt.unresolved),
		"skipped":       len(rebuilt.skipped),
		"total":         total.String(),
	}).Info("Settlement synchronised")

	s.publish(ctx, messaging.EventSettlementSynced, rem.ID, map[string]interface{}{
		"remittance_id":   rem.ID,
		"settlement_date": domain.DateOnly(date).Format("2006-01-02"),
		"bank_account":    bankAccount,
		"declared_total":  rem.DeclaredTotal,
		"localized_total": rem.LocalizedTotal,
	})

	return &SyncResult{
		Remittance: rem,
		Lines:      rem.Lines,
		Unresolved: rebuilt.unresolved,
		Skipped:    rebuilt.skipped,
	}, nil
}

// Unreconcile removes every bank transaction allocation pointing at the
// remittance's lines and zeroes its localized total. Running it again
// finds nothing to remove.
func (s *remittanceService) Unreconcile(ctx context.Context, id string) (*UnreconcileResult, error) {
	if id == "" {
		return nil, domain.ErrEmptyID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.lockRemittance(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &UnreconcileResult{
		RemittanceID:     id,
		Removed:          make([]domain.VoucherRef, 0),
		BankTransactions: make([]string, 0),
	}

	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		rem, err := tx.Remittances().Get(ctx, id)
		if err != nil {
			return err
		}

		touched := make(map[string]bool)
		for _, line := range rem.Lines {
			ref := line.Voucher()
			for {
				bt, err := tx.BankTransactions().FindByAllocation(ctx, ref)
				if err != nil {
					return err
				}
				if bt == nil {
					break
				}
				if _, err := tx.BankTransactions().RemoveAllocation(ctx, bt.ID, ref); err != nil {
					return err
				}
				result.Removed = append(result.Removed, ref)
				if !touched[bt.ID] {
					touched[bt.ID] = true
					result.BankTransactions = append(result.BankTransactions, bt.ID)
				}
			}
		}

		rem.LocalizedTotal = decimal.Zero
		return tx.Remittances().Save(ctx, rem)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"remittance_id":     id,
		"removed":           len(result.Removed),
		"bank_transactions": len(result.BankTransactions),
	}).Info("Remittance unreconciled")

	s.publish(ctx, messaging.EventRemittanceUnreconciled, id, result)
	return result, nil
}

// RecomputeTotals sets the declared total to the sum of the lines
func (s *remittanceService) RecomputeTotals(ctx context.Context, id string) (*domain.RemittanceTotals, error) {
	if id == "" {
		return nil, domain.ErrEmptyID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.lockRemittance(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	rem, err := s.store.Remittances().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rem.DeclaredTotal = rem.LinesTotal()
	if err := s.store.Remittances().Save(ctx, rem); err != nil {
		return nil, err
	}

	return &domain.RemittanceTotals{
		RemittanceID:   rem.ID,
		DeclaredTotal:  rem.DeclaredTotal,
		LocalizedTotal: rem.LocalizedTotal,
	}, nil
}

// RecalculateTotals runs RecomputeTotals for each id. Failures are reported
// per remittance.
func (s *remittanceService) RecalculateTotals(ctx context.Context, ids []string) []TotalsOutcome {
	outcomes := make([]TotalsOutcome, 0, len(ids))
	for _, id := range ids {
		totals, err := s.RecomputeTotals(ctx, id)
		if err != nil {
			logger.FromContext(ctx, s.logger).WithError(err).WithField("remittance_id", id).Warn("Failed to recompute remittance totals")
			outcomes = append(outcomes, TotalsOutcome{RemittanceID: id, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, TotalsOutcome{RemittanceID: id, Totals: totals})
	}
	return outcomes
}

func (s *remittanceService) ListReview(ctx context.Context, id string, limit int) ([]domain.SkippedItem, error) {
	if id == "" {
		return nil, domain.ErrEmptyID
	}
	return s.review.ListByRemittance(ctx, id, limit)
}

// publish is fire and forget: the change is already committed
func (s *remittanceService) publish(ctx context.Context, eventType, key string, payload interface{}) {
	publishEvent(ctx, s.events, s.logger, eventType, key, payload)
}

func publishEvent(ctx context.Context, events EventPublisher, log logrus.FieldLogger, eventType, key string, payload interface{}) {
	event := messaging.NewEvent(eventType, key, payload)
	event.CorrelationID = logger.CorrelationID(ctx)

	if err := events.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.FromContext(ctx, log).WithError(err).WithField("event_type", eventType).Warn("Event not published")
	}
}
