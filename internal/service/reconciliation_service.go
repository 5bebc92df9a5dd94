package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
	"remittance-engine/internal/lock"
	"remittance-engine/internal/matcher"
	"remittance-engine/internal/platform/messaging"
	"remittance-engine/pkg/logger"
)

type ReconciliationService interface {
	ListCandidates(ctx context.Context, q domain.CandidateQuery) ([]domain.MatchCandidate, error)
	Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error)
}

// Selection is one voucher picked by the caller. Amount overrides the
// voucher's own amount when set.
type Selection struct {
	Kind   domain.VoucherKind `json:"kind" binding:"required"`
	ID     string             `json:"id" binding:"required"`
	Amount *decimal.Decimal   `json:"amount,omitempty"`
}

func (s Selection) Ref() domain.VoucherRef {
	return domain.VoucherRef{Kind: s.Kind, ID: s.ID}
}

type ReconcileRequest struct {
	BankTransactionID string      `json:"bank_transaction_id" binding:"required"`
	Selections        []Selection `json:"selections" binding:"required"`
	SameBankOnly      bool        `json:"same_bank_only"`
}

// ReconcileResult reports what reached the bank transaction. Dropped
// entries arrived after the transaction was fully allocated.
type ReconcileResult struct {
	BankTransaction *domain.BankTransaction      `json:"bank_transaction"`
	Status          domain.BankTransactionStatus `json:"status"`
	Applied         []domain.Allocation          `json:"applied"`
	Dropped         []domain.Allocation          `json:"dropped"`
	Remittances     []domain.RemittanceTotals    `json:"remittances"`
	Skipped         []domain.SkippedItem         `json:"skipped"`
	SkippedCount    int                          `json:"skipped_count"`
}

type reconciliationService struct {
	*aggregate
	engine    *matcher.CandidateEngine
	resolvers ResolverRegistry
	locks     *lock.Keyed
	events    EventPublisher
	timeout   time.Duration
}

func NewReconciliationService(
	store domain.Store,
	engine *matcher.CandidateEngine,
	sync *SettlementSynchronizer,
	resolvers ResolverRegistry,
	locks *lock.Keyed,
	review domain.ReviewRepository,
	events EventPublisher,
	timeout time.Duration,
	logger logrus.FieldLogger,
) ReconciliationService {
	if resolvers == nil {
		resolvers = DefaultResolvers()
	}
	return &reconciliationService{
		aggregate: newAggregate(store, sync, review, logger),
		engine:    engine,
		resolvers: resolvers,
		locks:     locks,
		events:    events,
		timeout:   timeout,
	}
}

func (s *reconciliationService) ListCandidates(ctx context.Context, q domain.CandidateQuery) ([]domain.MatchCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.engine.FindCandidates(ctx, q)
}

// expansion is one remittance turned into allocation entries, waiting for
// the final commit
type expansion struct {
	remittance *domain.Remittance
	baseline   decimal.Decimal
	entries    []domain.Allocation
}

// Reconcile allocates the selected vouchers to a bank transaction.
// Remittances are expanded into their settlement vouchers first; one that
// fails to expand is skipped. Remittance totals and the allocation are
// committed together.
func (s *reconciliationService) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	if err := validateReconcileRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := logger.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"bank_transaction_id": req.BankTransactionID,
		"same_bank_only":      req.SameBankOnly,
	})

	releaseTx, err := s.locks.Acquire(ctx, bankTransactionKey(req.BankTransactionID))
	if err != nil {
		return nil, lockError(err, "bank_transaction", req.BankTransactionID)
	}
	defer releaseTx()

	bt, err := s.store.BankTransactions().Get(ctx, req.BankTransactionID)
	if err != nil {
		return nil, err
	}
	account, err := s.store.Vouchers().GetBankAccount(ctx, bt.BankAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to load account of bank transaction %s: %w", bt.ID, err)
	}

	var remittanceKeys []string
	for _, sel := range req.Selections {
		if sel.Kind == domain.KindRemittance {
			remittanceKeys = append(remittanceKeys, remittanceKey(sel.ID))
		}
	}
	releaseRemittances, err := s.locks.AcquireAll(ctx, remittanceKeys)
	if err != nil {
		var keyErr *lock.KeyError
		if errors.As(err, &keyErr) {
			return nil, lockError(err, string(domain.KindRemittance), strings.TrimPrefix(keyErr.Key, remittanceKey("")))
		}
		return nil, err
	}
	defer releaseRemittances()

	result := &ReconcileResult{
		Applied:     make([]domain.Allocation, 0),
		Dropped:     make([]domain.Allocation, 0),
		Remittances: make([]domain.RemittanceTotals, 0),
		Skipped:     make([]domain.SkippedItem, 0),
	}

	var (
		entries    []domain.Allocation
		expansions []*expansion
	)
	for _, sel := range req.Selections {
		ref := sel.Ref()

		if sel.Kind == domain.KindRemittance {
			exp, skipped, err := s.expand(ctx, sel.ID, bt, account.Bank, req.SameBankOnly)
			result.Skipped = append(result.Skipped, skipped...)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				item := domain.SkippedItem{
					RemittanceID:      sel.ID,
					BankTransactionID: bt.ID,
					Voucher:           &ref,
					Reason:            err.Error(),
					ErrorKind:         domain.ErrorKind(err),
				}
				s.skip(ctx, item, err)
				result.Skipped = append(result.Skipped, item)
				continue
			}
			expansions = append(expansions, exp)
			entries = append(entries, exp.entries...)
			continue
		}

		entry, err := s.direct(ctx, sel)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		updated := bt
		if len(entries) > 0 {
			var err error
			updated, err = tx.BankTransactions().Allocate(ctx, bt.ID, entries)
			if err != nil {
				return err
			}
		}

		applied := appliedAmounts(bt, updated)
		for _, exp := range expansions {
			rem := exp.remittance
			confirmed := decimal.Zero
			for _, e := range exp.entries {
				if amount, ok := applied[e.Voucher]; ok {
					confirmed = confirmed.Add(amount)
				}
			}
			rem.LocalizedTotal = exp.baseline.Add(confirmed)
			if err := tx.Remittances().Save(ctx, rem); err != nil {
				return err
			}
			result.Remittances = append(result.Remittances, domain.RemittanceTotals{
				RemittanceID:   rem.ID,
				DeclaredTotal:  rem.DeclaredTotal,
				LocalizedTotal: rem.LocalizedTotal,
			})
		}

		for _, e := range entries {
			if amount, ok := applied[e.Voucher]; ok {
				result.Applied = append(result.Applied, domain.Allocation{Voucher: e.Voucher, Amount: amount})
			} else {
				result.Dropped = append(result.Dropped, e)
			}
		}
		result.BankTransaction = updated
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Reconciliation failed, nothing committed")
		return nil, err
	}

	result.Status = result.BankTransaction.Status
	result.SkippedCount = len(result.Skipped)

	log.WithFields(logrus.Fields{
		"status":  result.Status,
		"applied": len(result.Applied),
		"dropped": len(result.Dropped),
		"skipped": result.SkippedCount,
	}).Info("Bank transaction reconciled")

	publishEvent(ctx, s.events, s.logger, messaging.EventReconciliationApplied, bankTransactionKey(bt.ID), result)
	return result, nil
}

// expand brings a remittance's lines current at the bank transaction's date
// and account and picks the vouchers this transaction may settle. With
// sameBankOnly, issued payments keep their paying account so the bank
// filter sees where they were really paid from.
func (s *reconciliationService) expand(ctx context.Context, remittanceID string, bt *domain.BankTransaction, txBank string, sameBankOnly bool) (*expansion, []domain.SkippedItem, error) {
	rem, err := s.store.Remittances().Get(ctx, remittanceID)
	if err != nil {
		return nil, nil, err
	}

	target := SettlementTarget{
		Date:              bt.Date,
		BankAccount:       bt.BankAccount,
		KeepIssuedAccount: sameBankOnly,
	}
	rebuilt, err := s.rebuild(ctx, rem, target, bt.ID)
	if err != nil {
		return nil, nil, err
	}

	exp := &expansion{remittance: rem, baseline: rem.LocalizedTotal}
	if err := rem.ReplaceLines(rebuilt.lines); err != nil {
		return nil, rebuilt.skipped, err
	}
	rem.DeclaredTotal = rem.LinesTotal()

	banks := make(map[string]string)
	for _, line := range rem.Lines {
		if !line.Amount.IsPositive() {
			continue
		}
		include, err := s.includeLine(ctx, line, txBank, sameBankOnly, banks)
		if err != nil {
			return nil, rebuilt.skipped, err
		}
		if include {
			exp.entries = append(exp.entries, domain.Allocation{Voucher: line.Voucher(), Amount: line.Amount})
		}
	}

	logger.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"remittance_id":       rem.ID,
		"bank_transaction_id": bt.ID,
		"lines":               len(rem.Lines),
		"included":            len(exp.entries),
	}).Debug("Remittance expanded")

	return exp, rebuilt.skipped, nil
}

// includeLine applies the bank filter to one settlement line. A paid line
// counts when the filter is off or the payment left from the transaction's
// bank. A line without payment falls back to its invoice, which counts when
// the supplier's bank matches the transaction's bank with the filter on, or
// differs from it with the filter off.
func (s *reconciliationService) includeLine(ctx context.Context, line domain.SettlementLine, txBank string, sameBankOnly bool, banks map[string]string) (bool, error) {
	vouchers := s.store.Vouchers()

	if line.HasPayment() {
		if !sameBankOnly {
			return true, nil
		}
		p, err := vouchers.GetPayment(ctx, line.PaymentID)
		if err != nil {
			return false, err
		}
		bank, ok := banks[p.BankAccount]
		if !ok {
			account, err := vouchers.GetBankAccount(ctx, p.BankAccount)
			if err != nil {
				return false, err
			}
			bank = account.Bank
			banks[p.BankAccount] = bank
		}
		return bank == txBank, nil
	}

	inv, err := vouchers.GetInvoice(ctx, line.InvoiceID)
	if err != nil {
		return false, err
	}
	var supplierBank string
	account, err := vouchers.ResolvePartyBankAccount(ctx, inv.Supplier, inv.Company)
	if err != nil {
		logger.FromContext(ctx, s.logger).WithError(err).WithField("invoice_id", inv.ID).
			Warn("Supplier bank unresolved, treating it as unknown")
	} else if account != nil {
		supplierBank = account.Bank
	}

	if sameBankOnly {
		return supplierBank == txBank, nil
	}
	return supplierBank != txBank, nil
}

// direct resolves a non-remittance selection into one allocation entry
func (s *reconciliationService) direct(ctx context.Context, sel Selection) (domain.Allocation, error) {
	ref := sel.Ref()
	summary, err := s.resolvers.Resolve(ctx, s.store, ref)
	if err != nil {
		return domain.Allocation{}, err
	}
	if summary.Status != domain.Submitted {
		return domain.Allocation{}, domain.InconsistentStateError{
			Entity: string(ref.Kind),
			ID:     ref.ID,
			Reason: fmt.Sprintf("voucher is %s", summary.Status),
		}
	}

	amount := summary.Amount
	if sel.Amount != nil {
		amount = *sel.Amount
	}
	if !amount.IsPositive() {
		return domain.Allocation{}, domain.InconsistentStateError{
			Entity: string(ref.Kind),
			ID:     ref.ID,
			Reason: "nothing left to allocate",
		}
	}
	return domain.Allocation{Voucher: ref, Amount: amount}, nil
}

// appliedAmounts lists the allocations present after the commit that were
// not there before it
func appliedAmounts(before, after *domain.BankTransaction) map[domain.VoucherRef]decimal.Decimal {
	applied := make(map[domain.VoucherRef]decimal.Decimal)
	for _, a := range after.Allocations {
		if !before.HasAllocation(a.Voucher) {
			applied[a.Voucher] = a.Amount
		}
	}
	return applied
}

func validateReconcileRequest(req ReconcileRequest) error {
	if req.BankTransactionID == "" {
		return domain.ErrEmptyID
	}
	if len(req.Selections) == 0 {
		return domain.ErrNoSelections
	}
	seen := make(map[domain.VoucherRef]bool, len(req.Selections))
	for _, sel := range req.Selections {
		if !sel.Kind.Valid() {
			return fmt.Errorf("%w: unknown voucher kind %q", domain.ErrInvalidInput, sel.Kind)
		}
		if sel.ID == "" {
			return domain.ErrEmptyID
		}
		if sel.Amount != nil && !sel.Amount.IsPositive() {
			return domain.ErrInvalidAmount
		}
		ref := sel.Ref()
		if seen[ref] {
			return fmt.Errorf("%w: %s %s selected more than once", domain.ErrInvalidInput, ref.Kind, ref.ID)
		}
		seen[ref] = true
	}
	return nil
}
