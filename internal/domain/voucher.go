package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// VoucherKind identifies the document type a voucher reference points to
type VoucherKind string

const (
	KindPurchaseInvoice VoucherKind = "Purchase Invoice"
	KindPaymentEntry    VoucherKind = "Payment Entry"
	KindRemittance      VoucherKind = "Remittance"
)

// VoucherKinds lists every kind the engine understands, in default query order
var VoucherKinds = []VoucherKind{KindPaymentEntry, KindPurchaseInvoice, KindRemittance}

func (k VoucherKind) Valid() bool {
	switch k {
	case KindPurchaseInvoice, KindPaymentEntry, KindRemittance:
		return true
	}
	return false
}

// ParseVoucherKind accepts the display name ("Payment Entry") or the
// snake_case form ("payment_entry")
func ParseVoucherKind(s string) (VoucherKind, error) {
	switch s {
	case string(KindPurchaseInvoice), "purchase_invoice":
		return KindPurchaseInvoice, nil
	case string(KindPaymentEntry), "payment_entry":
		return KindPaymentEntry, nil
	case string(KindRemittance), "remittance":
		return KindRemittance, nil
	}
	return "", fmt.Errorf("%w: unknown voucher kind %q", ErrInvalidInput, s)
}

// VoucherRef is a closed reference to one voucher of a known kind
type VoucherRef struct {
	Kind VoucherKind `json:"kind"`
	ID   string      `json:"id"`
}

func (r VoucherRef) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}

// DocStatus is the lifecycle state of a voucher
type DocStatus string

const (
	Draft     DocStatus = "DRAFT"
	Submitted DocStatus = "SUBMITTED"
	Cancelled DocStatus = "CANCELLED"
)

// CheckTransition reports whether a voucher may move from s to next
func (s DocStatus) CheckTransition(ref VoucherRef, next DocStatus) error {
	switch {
	case s == Draft && next == Submitted:
		return nil
	case s == Submitted && next == Cancelled:
		return nil
	}
	return InconsistentStateError{
		Entity: string(ref.Kind),
		ID:     ref.ID,
		Reason: fmt.Sprintf("cannot move from %s to %s", s, next),
	}
}

// Invoice is a purchase invoice issued against a supplier
type Invoice struct {
	ID                string          `json:"id"`
	Company           string          `json:"company"`
	Supplier          string          `json:"supplier"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	IsPaid            bool            `json:"is_paid"`
	PostingDate       time.Time       `json:"posting_date"`
	DueDate           time.Time       `json:"due_date"`
	RemittanceID      string          `json:"remittance_id,omitempty"`
	RemittanceIssued  bool            `json:"remittance_issued"`
	Status            DocStatus       `json:"status"`
	AmendedFrom       string          `json:"amended_from,omitempty"`
}

func (i *Invoice) Ref() VoucherRef {
	return VoucherRef{Kind: KindPurchaseInvoice, ID: i.ID}
}

// Summary projects the invoice onto the kind-independent voucher view.
// An invoice carries no paying account of its own.
func (i *Invoice) Summary() VoucherSummary {
	return VoucherSummary{
		Ref:         i.Ref(),
		Amount:      i.GrandTotal,
		Party:       i.Supplier,
		Company:     i.Company,
		Status:      i.Status,
		PostingDate: i.PostingDate,
	}
}

// InvoiceAmendment lists the fields a successor invoice overrides.
// Nil fields are copied from the predecessor.
type InvoiceAmendment struct {
	IsPaid            *bool
	OutstandingAmount *decimal.Decimal
	PostingDate       *time.Time
	DueDate           *time.Time
}

// Apply builds the successor draft of inv
func (a InvoiceAmendment) Apply(inv Invoice) Invoice {
	next := inv
	next.ID = ""
	next.Status = Draft
	next.AmendedFrom = inv.ID
	if a.IsPaid != nil {
		next.IsPaid = *a.IsPaid
	}
	if a.OutstandingAmount != nil {
		next.OutstandingAmount = *a.OutstandingAmount
	}
	if a.PostingDate != nil {
		next.PostingDate = DateOnly(*a.PostingDate)
	}
	if a.DueDate != nil {
		next.DueDate = DateOnly(*a.DueDate)
	}
	return next
}

// Payment is a payment entry settling one invoice
type Payment struct {
	ID               string          `json:"id"`
	Company          string          `json:"company"`
	Party            string          `json:"party"`
	InvoiceID        string          `json:"invoice_id"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	PostingDate      time.Time       `json:"posting_date"`
	BankAccount      string          `json:"bank_account"`
	PartyBankAccount *string         `json:"party_bank_account,omitempty"`
	Status           DocStatus       `json:"status"`
	AmendedFrom      string          `json:"amended_from,omitempty"`
}

func (p *Payment) Ref() VoucherRef {
	return VoucherRef{Kind: KindPaymentEntry, ID: p.ID}
}

func (p *Payment) Summary() VoucherSummary {
	return VoucherSummary{
		Ref:         p.Ref(),
		Amount:      p.PaidAmount,
		Party:       p.Party,
		BankAccount: p.BankAccount,
		Company:     p.Company,
		Status:      p.Status,
		PostingDate: p.PostingDate,
	}
}

// Clone returns a draft copy of p that names p as its predecessor
func (p *Payment) Clone() Payment {
	next := *p
	next.ID = ""
	next.Status = Draft
	next.AmendedFrom = p.ID
	if p.PartyBankAccount != nil {
		iban := *p.PartyBankAccount
		next.PartyBankAccount = &iban
	}
	return next
}

// BankAccount is either a company paying account or a party's account
type BankAccount struct {
	ID        string `json:"id"`
	Bank      string `json:"bank"`
	IBAN      string `json:"iban"`
	Company   string `json:"company"`
	Party     string `json:"party,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// VoucherSummary is the kind-independent view used by resolvers
type VoucherSummary struct {
	Ref         VoucherRef      `json:"ref"`
	Amount      decimal.Decimal `json:"amount"`
	Party       string          `json:"party,omitempty"`
	BankAccount string          `json:"bank_account,omitempty"`
	Company     string          `json:"company"`
	Status      DocStatus       `json:"status"`
	PostingDate time.Time       `json:"posting_date"`
}

// DateOnly truncates t to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay compares calendar days, ignoring time of day and zone
func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
