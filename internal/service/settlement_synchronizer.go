package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
	"remittance-engine/pkg/logger"
)

// SettlementTarget is the date and paying account an invoice should be
// settled at
type SettlementTarget struct {
	Date        time.Time
	BankAccount string
	// KeepIssuedAccount leaves the paying account of submitted payments
	// alone; only the date decides whether they are re-issued
	KeepIssuedAccount bool
}

// SettlementOutcome names the transition taken for one invoice
type SettlementOutcome string

const (
	OutcomeReused     SettlementOutcome = "reused"
	OutcomeReissued   SettlementOutcome = "reissued"
	OutcomeSubmitted  SettlementOutcome = "draft_submitted"
	OutcomeCreated    SettlementOutcome = "created"
	OutcomeAmended    SettlementOutcome = "invoice_amended"
	OutcomeUnresolved SettlementOutcome = "unresolved"
)

// Settlement is the result of synchronising one invoice
type Settlement struct {
	Line    domain.SettlementLine
	Payment *domain.Payment
	Outcome SettlementOutcome
}

// SettlementSynchronizer makes sure one invoice has a submitted payment at
// the target date and account. Every invoice is handled in its own store
// transaction so a failure never leaves a half-amended invoice behind.
type SettlementSynchronizer struct {
	store  domain.Store
	logger logrus.FieldLogger
}

func NewSettlementSynchronizer(store domain.Store, logger logrus.FieldLogger) *SettlementSynchronizer {
	return &SettlementSynchronizer{store: store, logger: logger}
}

func (s *SettlementSynchronizer) Settle(ctx context.Context, invoiceID string, target SettlementTarget) (*Settlement, error) {
	var result *Settlement
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		var err error
		result, err = s.settle(ctx, tx, invoiceID, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"invoice_id": result.Line.InvoiceID,
		"payment_id": result.Line.PaymentID,
		"outcome":    result.Outcome,
	}).Debug("Invoice settlement synchronised")
	return result, nil
}

func (s *SettlementSynchronizer) settle(ctx context.Context, tx domain.Store, invoiceID string, target SettlementTarget) (*Settlement, error) {
	vouchers := tx.Vouchers()

	inv, err := vouchers.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.Submitted {
		return nil, domain.InconsistentStateError{
			Entity: string(domain.KindPurchaseInvoice),
			ID:     inv.ID,
			Reason: fmt.Sprintf("invoice is %s", inv.Status),
		}
	}

	payments, err := vouchers.FindPaymentsForInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	submitted, draft := pickPayments(payments)

	switch {
	case submitted != nil:
		return s.alignSubmitted(ctx, tx, inv, submitted, target)
	case draft != nil:
		return s.submitDraft(ctx, tx, inv, draft, target)
	case inv.IsPaid:
		successor, err := s.reopenInvoice(ctx, tx, inv, target)
		if err != nil {
			return nil, err
		}
		result, err := s.createPayment(ctx, tx, successor, target)
		if err != nil {
			return nil, err
		}
		result.Outcome = OutcomeAmended
		return result, nil
	default:
		return s.createPayment(ctx, tx, inv, target)
	}
}

// pickPayments returns the most recent submitted and draft payments
func pickPayments(payments []domain.Payment) (submitted, draft *domain.Payment) {
	for i := range payments {
		p := &payments[i]
		switch p.Status {
		case domain.Submitted:
			if submitted == nil {
				submitted = p
			}
		case domain.Draft:
			if draft == nil {
				draft = p
			}
		}
	}
	return submitted, draft
}

func (s *SettlementSynchronizer) alignSubmitted(ctx context.Context, tx domain.Store, inv *domain.Invoice, p *domain.Payment, target SettlementTarget) (*Settlement, error) {
	accountMatches := target.KeepIssuedAccount || p.BankAccount == target.BankAccount
	if domain.SameDay(p.PostingDate, target.Date) && accountMatches {
		return settled(inv, p, OutcomeReused), nil
	}

	vouchers := tx.Vouchers()
	if err := vouchers.Cancel(ctx, p.Ref()); err != nil {
		return nil, fmt.Errorf("failed to cancel payment %s: %w", p.ID, err)
	}

	clone := p.Clone()
	clone.PostingDate = domain.DateOnly(target.Date)
	if !target.KeepIssuedAccount {
		clone.BankAccount = target.BankAccount
	}
	if _, err := vouchers.CreatePayment(ctx, &clone); err != nil {
		return nil, fmt.Errorf("failed to re-issue payment %s: %w", p.ID, err)
	}
	if err := vouchers.Submit(ctx, clone.Ref()); err != nil {
		return nil, fmt.Errorf("failed to submit re-issued payment %s: %w", clone.ID, err)
	}
	clone.Status = domain.Submitted

	logger.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"invoice_id":   inv.ID,
		"cancelled_id": p.ID,
		"payment_id":   clone.ID,
		"posting_date": clone.PostingDate.Format("2006-01-02"),
	}).Info("Payment re-issued at settlement date")

	return settled(inv, &clone, OutcomeReissued), nil
}

func (s *SettlementSynchronizer) submitDraft(ctx context.Context, tx domain.Store, inv *domain.Invoice, p *domain.Payment, target SettlementTarget) (*Settlement, error) {
	if !p.PaidAmount.Equal(inv.OutstandingAmount) {
		logger.FromContext(ctx, s.logger).WithFields(logrus.Fields{
			"invoice_id":  inv.ID,
			"payment_id":  p.ID,
			"paid_amount": p.PaidAmount.String(),
			"outstanding": inv.OutstandingAmount.String(),
		}).Warn("Draft payment does not match outstanding amount, invoice left unresolved")
		return &Settlement{
			Line:    domain.SettlementLine{InvoiceID: inv.ID, Amount: inv.OutstandingAmount},
			Outcome: OutcomeUnresolved,
		}, nil
	}

	p.BankAccount = target.BankAccount
	p.PostingDate = domain.DateOnly(target.Date)

	vouchers := tx.Vouchers()
	if err := vouchers.UpdatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update draft payment %s: %w", p.ID, err)
	}
	if err := vouchers.Submit(ctx, p.Ref()); err != nil {
		return nil, fmt.Errorf("failed to submit draft payment %s: %w", p.ID, err)
	}
	p.Status = domain.Submitted

	return settled(inv, p, OutcomeSubmitted), nil
}

// reopenInvoice undoes a paid flag set outside the payment flow by amending
// the invoice into an unpaid successor dated at the target
func (s *SettlementSynchronizer) reopenInvoice(ctx context.Context, tx domain.Store, inv *domain.Invoice, target SettlementTarget) (*domain.Invoice, error) {
	unpaid := false
	outstanding := inv.GrandTotal
	date := domain.DateOnly(target.Date)

	vouchers := tx.Vouchers()
	successorID, err := vouchers.AmendInvoice(ctx, inv.ID, domain.InvoiceAmendment{
		IsPaid:            &unpaid,
		OutstandingAmount: &outstanding,
		PostingDate:       &date,
		DueDate:           &date,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to amend invoice %s: %w", inv.ID, err)
	}
	if err := vouchers.Submit(ctx, domain.VoucherRef{Kind: domain.KindPurchaseInvoice, ID: successorID}); err != nil {
		return nil, fmt.Errorf("failed to submit amended invoice %s: %w", successorID, err)
	}

	logger.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"invoice_id":   inv.ID,
		"successor_id": successorID,
	}).Info("Paid invoice amended before settlement")

	return vouchers.GetInvoice(ctx, successorID)
}

func (s *SettlementSynchronizer) createPayment(ctx context.Context, tx domain.Store, inv *domain.Invoice, target SettlementTarget) (*Settlement, error) {
	if !inv.OutstandingAmount.GreaterThan(decimal.Zero) {
		return nil, domain.InconsistentStateError{
			Entity: string(domain.KindPurchaseInvoice),
			ID:     inv.ID,
			Reason: "nothing outstanding to pay",
		}
	}

	p := domain.Payment{
		Company:          inv.Company,
		Party:            inv.Supplier,
		InvoiceID:        inv.ID,
		PaidAmount:       inv.OutstandingAmount,
		PostingDate:      domain.DateOnly(target.Date),
		BankAccount:      target.BankAccount,
		PartyBankAccount: s.resolvePartyIBAN(ctx, tx, inv),
	}

	vouchers := tx.Vouchers()
	if _, err := vouchers.CreatePayment(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create payment for invoice %s: %w", inv.ID, err)
	}
	if err := vouchers.Submit(ctx, p.Ref()); err != nil {
		return nil, fmt.Errorf("failed to submit payment %s: %w", p.ID, err)
	}
	p.Status = domain.Submitted

	return settled(inv, &p, OutcomeCreated), nil
}

// resolvePartyIBAN is best effort: a failure or a missing account yields nil
func (s *SettlementSynchronizer) resolvePartyIBAN(ctx context.Context, tx domain.Store, inv *domain.Invoice) *string {
	account, err := tx.Vouchers().ResolvePartyBankAccount(ctx, inv.Supplier, inv.Company)
	if err == nil && account != nil && account.IBAN != "" {
		iban := account.IBAN
		return &iban
	}

	if err == nil {
		err = domain.ExternalResolutionFailure{Party: inv.Supplier, Company: inv.Company}
	}
	var resolution domain.ExternalResolutionFailure
	if !errors.As(err, &resolution) {
		err = domain.ExternalResolutionFailure{Party: inv.Supplier, Company: inv.Company, Err: err}
	}
	logger.FromContext(ctx, s.logger).WithError(err).WithField("invoice_id", inv.ID).
		Warn("Party bank account unresolved, payment created without it")
	return nil
}

func settled(inv *domain.Invoice, p *domain.Payment, outcome SettlementOutcome) *Settlement {
	return &Settlement{
		Line: domain.SettlementLine{
			InvoiceID: inv.ID,
			PaymentID: p.ID,
			Amount:    p.PaidAmount,
		},
		Payment: p,
		Outcome: outcome,
	}
}
