package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
	"remittance-engine/pkg/logger"
)

// aggregate holds what the remittance and reconciliation services share:
// line rebuilding and the skipped-item review trail
type aggregate struct {
	store  domain.Store
	sync   *SettlementSynchronizer
	review domain.ReviewRepository
	clock  domain.Clock
	logger logrus.FieldLogger
}

func newAggregate(store domain.Store, sync *SettlementSynchronizer, review domain.ReviewRepository, logger logrus.FieldLogger) *aggregate {
	return &aggregate{
		store:  store,
		sync:   sync,
		review: review,
		clock:  time.Now,
		logger: logger,
	}
}

type rebuiltLines struct {
	lines      []domain.SettlementLine
	unresolved []string
	skipped    []domain.SkippedItem
}

// rebuild synchronises every invoice issued against rem and collects the
// new line set in a scratch slice. A failing invoice is logged, recorded
// for review and left out. Callers hold the remittance lock.
func (s *aggregate) rebuild(ctx context.Context, rem *domain.Remittance, target SettlementTarget, bankTransactionID string) (*rebuiltLines, error) {
	invoiceIDs, err := s.store.Vouchers().ListRemittanceInvoices(ctx, rem.ID)
	if err != nil {
		return nil, err
	}

	out := &rebuiltLines{
		lines:      make([]domain.SettlementLine, 0, len(invoiceIDs)),
		unresolved: make([]string, 0),
		skipped:    make([]domain.SkippedItem, 0),
	}
	for _, invoiceID := range invoiceIDs {
		settlement, err := s.sync.Settle(ctx, invoiceID, target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			item := domain.SkippedItem{
				RemittanceID:      rem.ID,
				BankTransactionID: bankTransactionID,
				InvoiceID:         invoiceID,
				Reason:            err.Error(),
				ErrorKind:         domain.ErrorKind(err),
			}
			s.skip(ctx, item, err)
			out.skipped = append(out.skipped, item)
			continue
		}
		if settlement.Outcome == OutcomeUnresolved {
			out.unresolved = append(out.unresolved, invoiceID)
		}
		out.lines = append(out.lines, settlement.Line)
	}
	return out, nil
}

// skip logs a skipped item and keeps it for manual review. A review store
// failure is logged only.
func (s *aggregate) skip(ctx context.Context, item domain.SkippedItem, cause error) {
	item.CorrelationID = logger.CorrelationID(ctx)
	if item.OccurredAt.IsZero() {
		item.OccurredAt = s.clock().UTC()
	}

	log := logger.FromContext(ctx, s.logger).WithError(cause).WithFields(logrus.Fields{
		"remittance_id":       item.RemittanceID,
		"bank_transaction_id": item.BankTransactionID,
		"invoice_id":          item.InvoiceID,
		"reason":              item.ErrorKind,
	})
	if item.Voucher != nil {
		log = log.WithField("voucher", item.Voucher.String())
	}
	log.Warn("Item skipped")

	if err := s.review.Record(ctx, item); err != nil {
		log.WithError(err).Error("Failed to record skipped item for review")
	}
}
