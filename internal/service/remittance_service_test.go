package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"remittance-engine/internal/domain"
	"remittance-engine/internal/platform/messaging"
)

func TestRemittanceService_SyncSettlementCreatesPayments(t *testing.T) {
	h := newHarness(t)

	res, err := h.remittances.SyncSettlement(context.Background(), "REM-1", march1, "BA-1")
	require.NoError(t, err)

	require.Len(t, res.Lines, 2)
	assert.Empty(t, res.Unresolved)
	assert.Empty(t, res.Skipped)

	total := dec(0)
	for _, invoiceID := range []string{"PI-1", "PI-2"} {
		p := h.activePayment(t, invoiceID)
		assert.Equal(t, domain.Submitted, p.Status)
		assert.True(t, domain.SameDay(march1, p.PostingDate))
		assert.Equal(t, "BA-1", p.BankAccount)
		total = total.Add(p.PaidAmount)
	}
	assert.True(t, total.Equal(dec(150)))

	rem := h.remittance(t, "REM-1")
	assert.True(t, rem.DeclaredTotal.Equal(dec(150)))
	assert.True(t, rem.LocalizedTotal.Equal(rem.LinesTotal()))

	h.events.AssertCalled(t, "Publish", mock.Anything, eventOfType(messaging.EventSettlementSynced))
}

func TestRemittanceService_SyncSettlementReissuesStalePayment(t *testing.T) {
	h := newHarness(t)
	h.store.PutPayment(domain.Payment{
		ID: "PE-OLD", Company: "ACME", Party: "SUP-1", InvoiceID: "PI-1",
		PaidAmount: dec(100), PostingDate: feb15, BankAccount: "BA-1", Status: domain.Submitted,
	})

	_, err := h.remittances.SyncSettlement(context.Background(), "REM-1", march1, "BA-1")
	require.NoError(t, err)

	history := h.store.PaymentsForInvoice("PI-1")
	require.Len(t, history, 2)

	original, clone := history[0], history[1]
	assert.Equal(t, "PE-OLD", original.ID)
	assert.Equal(t, domain.Cancelled, original.Status)
	assert.Equal(t, domain.Submitted, clone.Status)
	assert.Equal(t, "PE-OLD", clone.AmendedFrom)
	assert.True(t, domain.SameDay(march1, clone.PostingDate))
	assert.True(t, clone.PaidAmount.Equal(original.PaidAmount))
	assert.Equal(t, original.PaidAmount.String(), clone.PaidAmount.String())
}

func TestRemittanceService_SyncSettlementIsStable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.remittances.SyncSettlement(ctx, "REM-1", march1, "BA-1")
	require.NoError(t, err)
	second, err := h.remittances.SyncSettlement(ctx, "REM-1", march1, "BA-1")
	require.NoError(t, err)

	assert.Equal(t, first.Lines, second.Lines)
	assert.Len(t, h.store.PaymentsForInvoice("PI-1"), 1)
	assert.Len(t, h.store.PaymentsForInvoice("PI-2"), 1)
}

func TestRemittanceService_SyncSettlementAlignsEveryLine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.PutPayment(domain.Payment{
		ID: "PE-D", Company: "ACME", Party: "SUP-2", InvoiceID: "PI-2",
		PaidAmount: dec(20), PostingDate: feb15, BankAccount: "BA-2", Status: domain.Draft,
	})

	_, err := h.remittances.SyncSettlement(ctx, "REM-1", feb15, "BA-2")
	require.NoError(t, err)
	res, err := h.remittances.SyncSettlement(ctx, "REM-1", march1, "BA-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"PI-2"}, res.Unresolved)
	for _, line := range res.Lines {
		if !line.HasPayment() {
			assert.Equal(t, "PI-2", line.InvoiceID)
			continue
		}
		p, err := h.store.Vouchers().GetPayment(ctx, line.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.Submitted, p.Status)
		assert.True(t, domain.SameDay(march1, p.PostingDate))
		assert.Equal(t, "BA-1", p.BankAccount)
	}
}

func TestRemittanceService_SyncSettlementSkipsFailingInvoice(t *testing.T) {
	h := newHarness(t)
	h.store.PutInvoice(domain.Invoice{
		ID: "PI-3", Company: "ACME", Supplier: "SUP-1",
		GrandTotal: dec(30), OutstandingAmount: dec(30),
		RemittanceID: "REM-1", RemittanceIssued: true, Status: domain.Draft,
	})

	res, err := h.remittances.SyncSettlement(context.Background(), "REM-1", march1, "BA-1")
	require.NoError(t, err)

	assert.Len(t, res.Lines, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "PI-3", res.Skipped[0].InvoiceID)
	assert.Equal(t, "inconsistent_state", res.Skipped[0].ErrorKind)

	rem := h.remittance(t, "REM-1")
	assert.True(t, rem.LocalizedTotal.Equal(dec(150)))
	assert.True(t, rem.LocalizedTotal.Equal(rem.LinesTotal()))

	review, err := h.remittances.ListReview(context.Background(), "REM-1", 0)
	require.NoError(t, err)
	require.Len(t, review, 1)
	assert.Equal(t, "PI-3", review[0].InvoiceID)
	assert.False(t, review[0].OccurredAt.IsZero())
}

func TestRemittanceService_SyncSettlementSkipsFailedReopen(t *testing.T) {
	h := newHarness(t)
	paidWithNothingDue(h)

	res, err := h.remittances.SyncSettlement(context.Background(), "REM-1", march1, "BA-1")
	require.NoError(t, err)

	assert.Len(t, res.Lines, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "PI-9", res.Skipped[0].InvoiceID)
	assert.Equal(t, "inconsistent_state", res.Skipped[0].ErrorKind)

	assertNotAmended(t, h)
	assert.Len(t, h.store.PaymentsForInvoice("PI-1"), 1)
	assert.Len(t, h.store.PaymentsForInvoice("PI-2"), 1)

	rem := h.remittance(t, "REM-1")
	assert.True(t, rem.LocalizedTotal.Equal(dec(150)))
	assert.True(t, rem.DeclaredTotal.Equal(dec(150)))

	review, err := h.remittances.ListReview(context.Background(), "REM-1", 0)
	require.NoError(t, err)
	require.Len(t, review, 1)
	assert.Equal(t, "PI-9", review[0].InvoiceID)
}

func TestRemittanceService_SyncSettlementValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.remittances.SyncSettlement(context.Background(), "", march1, "BA-1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.remittances.SyncSettlement(context.Background(), "REM-1", march1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.remittances.SyncSettlement(context.Background(), "REM-1", time.Time{}, "BA-1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.remittances.SyncSettlement(context.Background(), "MISSING", march1, "BA-1")
	assert.True(t, domain.IsNotFound(err))
}

func TestRemittanceService_PublishFailureDoesNotFailSync(t *testing.T) {
	h := newHarness(t)
	h.events.ExpectedCalls = nil
	h.events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	res, err := h.remittances.SyncSettlement(context.Background(), "REM-1", march1, "BA-1")
	require.NoError(t, err)
	assert.Len(t, res.Lines, 2)
}

func TestRemittanceService_ReconcileAfterSyncAccumulates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	remittancesOnly := domain.CandidateQuery{
		BankAccount: "BA-1",
		Company:     "ACME",
		Amount:      dec(150),
		Kinds:       []domain.VoucherKind{domain.KindRemittance},
	}

	_, err := h.remittances.SyncSettlement(ctx, "REM-1", march1, "BA-1")
	require.NoError(t, err)
	rem := h.remittance(t, "REM-1")
	assert.True(t, rem.LocalizedTotal.Equal(dec(150)))
	candidates, err := h.reconciler.ListCandidates(ctx, remittancesOnly)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	res, err := h.reconciler.Reconcile(ctx, ReconcileRequest{
		BankTransactionID: "BT-1",
		Selections:        []Selection{{Kind: domain.KindRemittance, ID: "REM-1"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Remittances, 1)
	assert.True(t, res.Remittances[0].LocalizedTotal.Equal(dec(300)))
	assert.True(t, res.Remittances[0].DeclaredTotal.Equal(dec(150)))

	// the confirmed amount lands on top of the synced total, so the
	// remittance no longer reads as settled
	candidates, err = h.reconciler.ListCandidates(ctx, remittancesOnly)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "REM-1", candidates[0].ID)

	_, err = h.remittances.Unreconcile(ctx, "REM-1")
	require.NoError(t, err)
	rem = h.remittance(t, "REM-1")
	assert.True(t, rem.LocalizedTotal.IsZero())
	assert.Empty(t, h.bankTransaction(t, "BT-1").Allocations)
}

func TestRemittanceService_UnreconcileIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.reconciler.Reconcile(ctx, ReconcileRequest{
		BankTransactionID: "BT-1",
		Selections:        []Selection{{Kind: domain.KindRemittance, ID: "REM-1"}},
	})
	require.NoError(t, err)

	first, err := h.remittances.Unreconcile(ctx, "REM-1")
	require.NoError(t, err)
	assert.Len(t, first.Removed, 2)
	assert.Equal(t, []string{"BT-1"}, first.BankTransactions)

	afterFirst := h.bankTransaction(t, "BT-1")

	second, err := h.remittances.Unreconcile(ctx, "REM-1")
	require.NoError(t, err)
	assert.Empty(t, second.Removed)

	rem := h.remittance(t, "REM-1")
	assert.True(t, rem.LocalizedTotal.IsZero())

	bt := h.bankTransaction(t, "BT-1")
	assert.Empty(t, bt.Allocations)
	assert.Equal(t, domain.Unreconciled, bt.Status)
	assert.Equal(t, afterFirst.Allocations, bt.Allocations)
	assert.True(t, afterFirst.UnallocatedAmount.Equal(bt.UnallocatedAmount))

	for _, line := range rem.Lines {
		found, err := h.store.BankTransactions().FindByAllocation(ctx, line.Voucher())
		require.NoError(t, err)
		assert.Nil(t, found)
	}
	h.events.AssertCalled(t, "Publish", mock.Anything, eventOfType(messaging.EventRemittanceUnreconciled))
}

func TestRemittanceService_RecomputeTotals(t *testing.T) {
	h := newHarness(t)
	h.store.PutRemittance(domain.Remittance{
		ID: "REM-2", Company: "ACME", CreatedOn: feb15, LocalizedTotal: dec(40),
		Lines: []domain.SettlementLine{
			{InvoiceID: "PI-8", PaymentID: "PE-8", Amount: dec(70)},
			{InvoiceID: "PI-9", Amount: dec(30)},
		},
	})

	totals, err := h.remittances.RecomputeTotals(context.Background(), "REM-2")
	require.NoError(t, err)
	assert.True(t, totals.DeclaredTotal.Equal(dec(100)))
	assert.True(t, totals.LocalizedTotal.Equal(dec(40)))

	rem := h.remittance(t, "REM-2")
	assert.True(t, rem.DeclaredTotal.Equal(dec(100)))
	assert.Equal(t, 1, rem.Version)
}

func TestRemittanceService_RecalculateTotalsReportsFailures(t *testing.T) {
	h := newHarness(t)

	outcomes := h.remittances.RecalculateTotals(context.Background(), []string{"REM-1", "MISSING"})
	require.Len(t, outcomes, 2)

	assert.Equal(t, "REM-1", outcomes[0].RemittanceID)
	require.NotNil(t, outcomes[0].Totals)
	assert.True(t, outcomes[0].Totals.DeclaredTotal.IsZero())
	assert.Empty(t, outcomes[0].Error)

	assert.Equal(t, "MISSING", outcomes[1].RemittanceID)
	assert.Nil(t, outcomes[1].Totals)
	assert.Contains(t, outcomes[1].Error, "not found")
}

func TestRemittanceService_LockedRemittanceIsConflict(t *testing.T) {
	h := newHarness(t)
	release, err := h.locks.Acquire(context.Background(), remittanceKey("REM-1"))
	require.NoError(t, err)
	defer release()

	_, err = h.remittances.RecomputeTotals(context.Background(), "REM-1")
	assert.True(t, domain.IsConcurrencyConflict(err))

	_, err = h.remittances.Unreconcile(context.Background(), "REM-1")
	assert.True(t, domain.IsConcurrencyConflict(err))
}

func TestRemittanceService_GetRemittance(t *testing.T) {
	h := newHarness(t)

	rem, err := h.remittances.GetRemittance(context.Background(), "REM-1")
	require.NoError(t, err)
	assert.Equal(t, "ACME", rem.Company)

	_, err = h.remittances.GetRemittance(context.Background(), "MISSING")
	assert.True(t, domain.IsNotFound(err))

	_, err = h.remittances.GetRemittance(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyID)
}
