package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementLine pairs one invoice of a remittance with the payment that
// settles it. PaymentID is empty while no payment resolves.
type SettlementLine struct {
	InvoiceID string          `json:"invoice_id"`
	PaymentID string          `json:"payment_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

func (l SettlementLine) HasPayment() bool {
	return l.PaymentID != ""
}

// Voucher is the document a bank transaction allocation points at for this line
func (l SettlementLine) Voucher() VoucherRef {
	if l.HasPayment() {
		return VoucherRef{Kind: KindPaymentEntry, ID: l.PaymentID}
	}
	return VoucherRef{Kind: KindPurchaseInvoice, ID: l.InvoiceID}
}

// Remittance is a batch of invoices paid together in one payment run
type Remittance struct {
	ID             string           `json:"id"`
	Company        string           `json:"company"`
	CreatedOn      time.Time        `json:"created_on"`
	DestinationURL string           `json:"destination_url,omitempty"`
	DeclaredTotal  decimal.Decimal  `json:"declared_total"`
	LocalizedTotal decimal.Decimal  `json:"localized_total"`
	Lines          []SettlementLine `json:"lines"`
	Version        int              `json:"version"`
}

func (r *Remittance) Ref() VoucherRef {
	return VoucherRef{Kind: KindRemittance, ID: r.ID}
}

func (r *Remittance) Summary() VoucherSummary {
	return VoucherSummary{
		Ref:         r.Ref(),
		Amount:      r.DeclaredTotal,
		Company:     r.Company,
		Status:      Submitted,
		PostingDate: r.CreatedOn,
	}
}

// FullySettled reports whether the confirmed total reached the declared one
func (r *Remittance) FullySettled() bool {
	return r.LocalizedTotal.Equal(r.DeclaredTotal)
}

// ReplaceLines swaps in a complete new line set. The set is validated first
// so a rejected set leaves the remittance untouched.
func (r *Remittance) ReplaceLines(lines []SettlementLine) error {
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if l.InvoiceID == "" {
			return InconsistentStateError{Entity: string(KindRemittance), ID: r.ID, Reason: "settlement line without invoice"}
		}
		if seen[l.InvoiceID] {
			return InconsistentStateError{Entity: string(KindRemittance), ID: r.ID, Reason: "duplicate settlement line for invoice " + l.InvoiceID}
		}
		seen[l.InvoiceID] = true
	}
	next := make([]SettlementLine, len(lines))
	copy(next, lines)
	r.Lines = next
	return nil
}

// LinesTotal sums the settlement line amounts
func (r *Remittance) LinesTotal() decimal.Decimal {
	return SumLines(r.Lines)
}

func SumLines(lines []SettlementLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// RemittanceTotals is the pair reported by total recomputation
type RemittanceTotals struct {
	RemittanceID   string          `json:"remittance_id"`
	DeclaredTotal  decimal.Decimal `json:"declared_total"`
	LocalizedTotal decimal.Decimal `json:"localized_total"`
}

// SkippedItem records one item a batch operation could not process so it
// can be reviewed by hand
type SkippedItem struct {
	RemittanceID      string      `json:"remittance_id,omitempty" bson:"remittance_id,omitempty"`
	BankTransactionID string      `json:"bank_transaction_id,omitempty" bson:"bank_transaction_id,omitempty"`
	InvoiceID         string      `json:"invoice_id,omitempty" bson:"invoice_id,omitempty"`
	Voucher           *VoucherRef `json:"voucher,omitempty" bson:"voucher,omitempty"`
	Reason            string      `json:"reason" bson:"reason"`
	ErrorKind         string      `json:"error_kind" bson:"error_kind"`
	CorrelationID     string      `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	OccurredAt        time.Time   `json:"occurred_at" bson:"occurred_at"`
}
