package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remittance-engine/internal/domain"
)

func TestSettlementSynchronizer_CreatesPaymentWhenNoneExists(t *testing.T) {
	h := newHarness(t)

	res, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, "PI-1", res.Line.InvoiceID)
	assert.True(t, res.Line.Amount.Equal(dec(100)))

	p := h.activePayment(t, "PI-1")
	assert.Equal(t, res.Line.PaymentID, p.ID)
	assert.Equal(t, domain.Submitted, p.Status)
	assert.Equal(t, "BA-1", p.BankAccount)
	assert.True(t, domain.SameDay(march1, p.PostingDate))
	require.NotNil(t, p.PartyBankAccount)
	assert.Equal(t, "DE-SUP-1", *p.PartyBankAccount)
}

func TestSettlementSynchronizer_UnresolvedPartyAccountIsNotFatal(t *testing.T) {
	h := newHarness(t)

	res, err := h.sync.Settle(context.Background(), "PI-2", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Nil(t, h.activePayment(t, "PI-2").PartyBankAccount)
}

func TestSettlementSynchronizer_ReusesMatchingSubmittedPayment(t *testing.T) {
	h := newHarness(t)
	h.store.PutPayment(domain.Payment{
		ID: "PE-1", Company: "ACME", Party: "SUP-1", InvoiceID: "PI-1",
		PaidAmount: dec(100), PostingDate: march1, BankAccount: "BA-1", Status: domain.Submitted,
	})

	res, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeReused, res.Outcome)
	assert.Equal(t, "PE-1", res.Line.PaymentID)
	assert.Len(t, h.store.PaymentsForInvoice("PI-1"), 1)
}

func TestSettlementSynchronizer_ReissuesOnAccountMismatch(t *testing.T) {
	h := newHarness(t)
	h.store.PutPayment(domain.Payment{
		ID: "PE-1", Company: "ACME", Party: "SUP-1", InvoiceID: "PI-1",
		PaidAmount: dec(100), PostingDate: march1, BankAccount: "BA-2", Status: domain.Submitted,
	})

	res, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReissued, res.Outcome)
	assert.Equal(t, "BA-1", h.activePayment(t, "PI-1").BankAccount)
}

func TestSettlementSynchronizer_KeepIssuedAccount(t *testing.T) {
	h := newHarness(t)
	h.store.PutPayment(domain.Payment{
		ID: "PE-1", Company: "ACME", Party: "SUP-1", InvoiceID: "PI-1",
		PaidAmount: dec(100), PostingDate: march1, BankAccount: "BA-2", Status: domain.Submitted,
	})

	res, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1", KeepIssuedAccount: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReused, res.Outcome)

	h.store.PutPayment(domain.Payment{
		ID: "PE-2", Company: "ACME", Party: "SUP-2", InvoiceID: "PI-2",
		PaidAmount: dec(50), PostingDate: feb15, BankAccount: "BA-2", Status: domain.Submitted,
	})
	res, err = h.sync.Settle(context.Background(), "PI-2", SettlementTarget{Date: march1, BankAccount: "BA-1", KeepIssuedAccount: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReissued, res.Outcome)

	clone := h.activePayment(t, "PI-2")
	assert.Equal(t, "BA-2", clone.BankAccount)
	assert.True(t, domain.SameDay(march1, clone.PostingDate))
}

func TestSettlementSynchronizer_SubmitsMatchingDraft(t *testing.T) {
	h := newHarness(t)
	h.store.PutPayment(domain.Payment{
		ID: "PE-D", Company: "ACME", Party: "SUP-1", InvoiceID: "PI-1",
		PaidAmount: dec(100), PostingDate: feb15, BankAccount: "BA-2", Status: domain.Draft,
	})

	res, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSubmitted, res.Outcome)
	assert.Equal(t, "PE-D", res.Line.PaymentID)

	p := h.activePayment(t, "PI-1")
	assert.Equal(t, "PE-D", p.ID)
	assert.Equal(t, domain.Submitted, p.Status)
	assert.Equal(t, "BA-1", p.BankAccount)
	assert.True(t, domain.SameDay(march1, p.PostingDate))
}

func TestSettlementSynchronizer_LeavesMismatchedDraftAlone(t *testing.T) {
	h := newHarness(t)
	h.store.PutPayment(domain.Payment{
		ID: "PE-D", Company: "ACME", Party: "SUP-1", InvoiceID: "PI-1",
		PaidAmount: dec(80), PostingDate: feb15, BankAccount: "BA-2", Status: domain.Draft,
	})

	res, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnresolved, res.Outcome)
	assert.False(t, res.Line.HasPayment())
	assert.True(t, res.Line.Amount.Equal(dec(100)))

	p := h.activePayment(t, "PI-1")
	assert.Equal(t, domain.Draft, p.Status)
	assert.True(t, p.PaidAmount.Equal(dec(80)))
	assert.Equal(t, "BA-2", p.BankAccount)
}

func TestSettlementSynchronizer_AmendsExternallyPaidInvoice(t *testing.T) {
	h := newHarness(t)
	h.store.PutInvoice(domain.Invoice{
		ID: "PI-1", Company: "ACME", Supplier: "SUP-1",
		GrandTotal: dec(100), OutstandingAmount: dec(0), IsPaid: true,
		PostingDate: feb15, DueDate: feb15,
		RemittanceID: "REM-1", RemittanceIssued: true, Status: domain.Submitted,
	})

	res, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmended, res.Outcome)

	original, err := h.store.Vouchers().GetInvoice(context.Background(), "PI-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, original.Status)

	successor, err := h.store.Vouchers().GetInvoice(context.Background(), res.Line.InvoiceID)
	require.NoError(t, err)
	assert.NotEqual(t, "PI-1", successor.ID)
	assert.Equal(t, "PI-1", successor.AmendedFrom)
	assert.Equal(t, domain.Submitted, successor.Status)
	assert.False(t, successor.IsPaid)
	assert.True(t, successor.OutstandingAmount.Equal(dec(100)))
	assert.True(t, domain.SameDay(march1, successor.PostingDate))
	assert.True(t, domain.SameDay(march1, successor.DueDate))

	p := h.activePayment(t, successor.ID)
	assert.True(t, p.PaidAmount.Equal(dec(100)))
	assert.Equal(t, res.Line.PaymentID, p.ID)
}

// paidWithNothingDue seeds an invoice that reads as paid but carries no
// amount, so reopening it succeeds and paying the successor cannot
func paidWithNothingDue(h *harness) {
	h.store.PutInvoice(domain.Invoice{
		ID: "PI-9", Company: "ACME", Supplier: "SUP-1",
		GrandTotal: dec(0), OutstandingAmount: dec(0), IsPaid: true,
		PostingDate: feb15, DueDate: feb15,
		RemittanceID: "REM-1", RemittanceIssued: true, Status: domain.Submitted,
	})
}

// assertNotAmended checks PI-9 was left exactly as seeded
func assertNotAmended(t *testing.T, h *harness) {
	t.Helper()
	original, err := h.store.Vouchers().GetInvoice(context.Background(), "PI-9")
	require.NoError(t, err)
	assert.Equal(t, domain.Submitted, original.Status)
	assert.True(t, original.IsPaid)

	invoices := h.store.InvoicesForRemittance("REM-1")
	assert.Len(t, invoices, 3)
	for _, inv := range invoices {
		assert.NotEqual(t, "PI-9", inv.AmendedFrom, "successor %s survived", inv.ID)
	}
	assert.Empty(t, h.store.PaymentsForInvoice("PI-9"))
}

func TestSettlementSynchronizer_FailedReopenLeavesInvoiceUntouched(t *testing.T) {
	h := newHarness(t)
	paidWithNothingDue(h)

	_, err := h.sync.Settle(context.Background(), "PI-9", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	require.Error(t, err)
	assert.True(t, domain.IsInconsistentState(err))

	assertNotAmended(t, h)
	assert.Empty(t, h.store.PaymentsForInvoice("PI-1"))
	assert.Empty(t, h.store.PaymentsForInvoice("PI-2"))
}

func TestSettlementSynchronizer_RejectsCancelledInvoice(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Vouchers().Cancel(context.Background(), domain.VoucherRef{Kind: domain.KindPurchaseInvoice, ID: "PI-1"}))

	res, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	assert.Nil(t, res)
	assert.True(t, domain.IsInconsistentState(err))
	assert.Empty(t, h.store.PaymentsForInvoice("PI-1"))
}

func TestSettlementSynchronizer_NothingOutstanding(t *testing.T) {
	h := newHarness(t)
	h.store.PutInvoice(domain.Invoice{
		ID: "PI-1", Company: "ACME", Supplier: "SUP-1",
		GrandTotal: dec(100), OutstandingAmount: dec(0),
		RemittanceID: "REM-1", RemittanceIssued: true, Status: domain.Submitted,
	})

	_, err := h.sync.Settle(context.Background(), "PI-1", SettlementTarget{Date: march1, BankAccount: "BA-1"})
	assert.True(t, domain.IsInconsistentState(err))
}
