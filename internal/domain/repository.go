package domain

import (
	"context"
	"time"
)

// VoucherRepository is the voucher store contract: reads and lifecycle
// transitions of invoices and payments
type VoucherRepository interface {
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	// FindPaymentsForInvoice returns the non-cancelled payments that
	// reference the invoice, most recent posting date first
	FindPaymentsForInvoice(ctx context.Context, invoiceID string) ([]Payment, error)
	// ListRemittanceInvoices returns the ids of non-cancelled invoices
	// flagged as issued against the remittance
	ListRemittanceInvoices(ctx context.Context, remittanceID string) ([]string, error)

	CreatePayment(ctx context.Context, p *Payment) (string, error)
	// UpdatePayment rewrites the paying account and posting date of a draft
	UpdatePayment(ctx context.Context, p *Payment) error
	Submit(ctx context.Context, ref VoucherRef) error
	Cancel(ctx context.Context, ref VoucherRef) error
	// AmendInvoice cancels the invoice and creates a draft successor with
	// the overrides applied. It returns the successor id.
	AmendInvoice(ctx context.Context, id string, overrides InvoiceAmendment) (string, error)

	GetBankAccount(ctx context.Context, id string) (*BankAccount, error)
	// ResolvePartyBankAccount is best effort and returns nil, nil when the
	// party has no usable account
	ResolvePartyBankAccount(ctx context.Context, party, company string) (*BankAccount, error)
}

// BankTransactionRepository persists bank transactions and their allocations
type BankTransactionRepository interface {
	Get(ctx context.Context, id string) (*BankTransaction, error)
	// FindByAllocation returns the bank transaction holding an allocation
	// for ref, or nil, nil when none does
	FindByAllocation(ctx context.Context, ref VoucherRef) (*BankTransaction, error)
	Allocate(ctx context.Context, id string, entries []Allocation) (*BankTransaction, error)
	RemoveAllocation(ctx context.Context, id string, ref VoucherRef) (*BankTransaction, error)
}

// RemittanceRepository persists remittances together with their lines
type RemittanceRepository interface {
	Get(ctx context.Context, id string) (*Remittance, error)
	// Save replaces lines and totals in one step and bumps Version. It fails
	// with ConcurrencyConflict when the stored version moved on.
	Save(ctx context.Context, r *Remittance) error
}

// CandidateRepository runs the retrieval query for one voucher kind
type CandidateRepository interface {
	QueryCandidates(ctx context.Context, kind VoucherKind, q CandidateQuery) ([]MatchCandidate, error)
}

// Store groups the repositories behind one transactional scope
type Store interface {
	Vouchers() VoucherRepository
	BankTransactions() BankTransactionRepository
	Remittances() RemittanceRepository
	Candidates() CandidateRepository
	// WithinTx runs fn against a store bound to a single transaction.
	// Any error from fn, or a cancelled context, discards every write.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// ReviewRepository keeps skipped items for manual reconciliation review
type ReviewRepository interface {
	Record(ctx context.Context, item SkippedItem) error
	ListByRemittance(ctx context.Context, remittanceID string, limit int) ([]SkippedItem, error)
}

// Clock is swapped in tests
type Clock func() time.Time
