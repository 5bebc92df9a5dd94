package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"remittance-engine/internal/domain"
	"remittance-engine/internal/lock"
	"remittance-engine/internal/matcher"
	"remittance-engine/internal/platform/messaging"
	"remittance-engine/internal/repository"
	"remittance-engine/pkg/logger"
)

var (
	march1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	feb15  = time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event messaging.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func eventOfType(eventType string) interface{} {
	return mock.MatchedBy(func(e messaging.Event) bool {
		return e.Type == eventType
	})
}

type harness struct {
	store       *repository.MemoryStore
	review      *repository.MemoryReviewRepository
	events      *mockPublisher
	locks       *lock.Keyed
	sync        *SettlementSynchronizer
	remittances RemittanceService
	reconciler  ReconciliationService
}

// newHarness seeds a remittance of two invoices (100 and 50) with no
// payments. ACME pays from BA-1 at BANK-A and BA-2 at BANK-B; the bank
// transaction BT-1 of 150 sits on BA-1.
func newHarness(t *testing.T) *harness {
	t.Helper()

	store := repository.NewMemoryStore()
	store.PutBankAccount(domain.BankAccount{ID: "BA-1", Bank: "BANK-A", IBAN: "DE-ACME-1", Company: "ACME", IsDefault: true})
	store.PutBankAccount(domain.BankAccount{ID: "BA-2", Bank: "BANK-B", IBAN: "DE-ACME-2", Company: "ACME"})
	store.PutBankAccount(domain.BankAccount{ID: "SBA-1", Bank: "BANK-C", IBAN: "DE-SUP-1", Company: "ACME", Party: "SUP-1", IsDefault: true})

	store.PutInvoice(domain.Invoice{
		ID: "PI-1", Company: "ACME", Supplier: "SUP-1",
		GrandTotal: dec(100), OutstandingAmount: dec(100),
		PostingDate: feb15, DueDate: feb15,
		RemittanceID: "REM-1", RemittanceIssued: true, Status: domain.Submitted,
	})
	store.PutInvoice(domain.Invoice{
		ID: "PI-2", Company: "ACME", Supplier: "SUP-2",
		GrandTotal: dec(50), OutstandingAmount: dec(50),
		PostingDate: feb15, DueDate: feb15,
		RemittanceID: "REM-1", RemittanceIssued: true, Status: domain.Submitted,
	})
	store.PutRemittance(domain.Remittance{ID: "REM-1", Company: "ACME", CreatedOn: feb15, DeclaredTotal: dec(150)})
	store.PutBankTransaction(domain.BankTransaction{
		ID: "BT-1", Company: "ACME", BankAccount: "BA-1", Date: march1, Amount: dec(150), Currency: "EUR",
	})

	log := logger.NewNop()
	review := repository.NewMemoryReviewRepository()
	events := &mockPublisher{}
	events.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	locks := lock.NewKeyed(50 * time.Millisecond)
	sync := NewSettlementSynchronizer(store, log)

	engine, err := matcher.NewCandidateEngine(store.Candidates(), nil, 2, log)
	require.NoError(t, err)
	t.Cleanup(engine.Release)

	return &harness{
		store:       store,
		review:      review,
		events:      events,
		locks:       locks,
		sync:        sync,
		remittances: NewRemittanceService(store, sync, locks, review, events, time.Second, log),
		reconciler:  NewReconciliationService(store, engine, sync, nil, locks, review, events, time.Second, log),
	}
}

// activePayment returns the single non-cancelled payment of an invoice
func (h *harness) activePayment(t *testing.T, invoiceID string) domain.Payment {
	t.Helper()
	var active []domain.Payment
	for _, p := range h.store.PaymentsForInvoice(invoiceID) {
		if p.Status != domain.Cancelled {
			active = append(active, p)
		}
	}
	require.Len(t, active, 1, "invoice %s", invoiceID)
	return active[0]
}

func (h *harness) remittance(t *testing.T, id string) *domain.Remittance {
	t.Helper()
	rem, err := h.store.Remittances().Get(context.Background(), id)
	require.NoError(t, err)
	return rem
}

func (h *harness) bankTransaction(t *testing.T, id string) *domain.BankTransaction {
	t.Helper()
	bt, err := h.store.BankTransactions().Get(context.Background(), id)
	require.NoError(t, err)
	return bt
}
