package repository

import (
	"context"
	"sort"
	"sync"

	"remittance-engine/internal/domain"
)

// memoryState is one generation of the in-memory voucher store. A
// transaction works on a deep copy and swaps it in on success.
type memoryState struct {
	invoices     map[string]domain.Invoice
	payments     map[string]domain.Payment
	accounts     map[string]domain.BankAccount
	transactions map[string]domain.BankTransaction
	remittances  map[string]domain.Remittance
	// created keeps insertion order for tie-breaks
	created map[string]int
	seq     int
}

func newMemoryState() *memoryState {
	return &memoryState{
		invoices:     make(map[string]domain.Invoice),
		payments:     make(map[string]domain.Payment),
		accounts:     make(map[string]domain.BankAccount),
		transactions: make(map[string]domain.BankTransaction),
		remittances:  make(map[string]domain.Remittance),
		created:      make(map[string]int),
	}
}

func (s *memoryState) clone() *memoryState {
	next := newMemoryState()
	for k, v := range s.invoices {
		next.invoices[k] = v
	}
	for k, v := range s.payments {
		next.payments[k] = copyPayment(v)
	}
	for k, v := range s.accounts {
		next.accounts[k] = v
	}
	for k, v := range s.transactions {
		next.transactions[k] = copyBankTransaction(v)
	}
	for k, v := range s.remittances {
		next.remittances[k] = copyRemittance(v)
	}
	for k, v := range s.created {
		next.created[k] = v
	}
	next.seq = s.seq
	return next
}

func (s *memoryState) touch(id string) {
	s.seq++
	s.created[id] = s.seq
}

func copyPayment(p domain.Payment) domain.Payment {
	if p.PartyBankAccount != nil {
		iban := *p.PartyBankAccount
		p.PartyBankAccount = &iban
	}
	return p
}

func copyBankTransaction(bt domain.BankTransaction) domain.BankTransaction {
	allocations := make([]domain.Allocation, len(bt.Allocations))
	copy(allocations, bt.Allocations)
	bt.Allocations = allocations
	return bt
}

func copyRemittance(r domain.Remittance) domain.Remittance {
	lines := make([]domain.SettlementLine, len(r.Lines))
	copy(lines, r.Lines)
	r.Lines = lines
	return r
}

// memoryScope gives repositories access to a state generation
type memoryScope interface {
	read(fn func(st *memoryState) error) error
	write(ctx context.Context, fn func(st *memoryState) error) error
}

// MemoryStore is a process-local voucher store with the same contract as
// the Postgres one. Writes build a new generation and swap it in whole, so
// readers never see a half-applied change.
type MemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) read(fn func(st *memoryState) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *MemoryStore) write(ctx context.Context, fn func(st *memoryState) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.commit(ctx, fn)
}

// commit runs fn on a copy of the current generation and publishes it.
// Callers hold txMu.
func (s *MemoryStore) commit(ctx context.Context, fn func(st *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	scratch := s.state.clone()
	s.mu.RUnlock()

	if err := fn(scratch); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = scratch
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Vouchers() domain.VoucherRepository {
	return &memoryVoucherRepository{scope: s}
}

func (s *MemoryStore) BankTransactions() domain.BankTransactionRepository {
	return &memoryBankTransactionRepository{scope: s}
}

func (s *MemoryStore) Remittances() domain.RemittanceRepository {
	return &memoryRemittanceRepository{scope: s}
}

func (s *MemoryStore) Candidates() domain.CandidateRepository {
	return &memoryCandidateRepository{scope: s}
}

// WithinTx serialises transactions. Repositories of the base store must not
// be used for writes from inside fn.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.commit(ctx, func(st *memoryState) error {
		return fn(&memoryTx{state: st})
	})
}

// memoryTx is the store view bound to one scratch generation
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) read(fn func(st *memoryState) error) error {
	return fn(t.state)
}

func (t *memoryTx) write(ctx context.Context, fn func(st *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(t.state)
}

func (t *memoryTx) Vouchers() domain.VoucherRepository {
	return &memoryVoucherRepository{scope: t}
}

func (t *memoryTx) BankTransactions() domain.BankTransactionRepository {
	return &memoryBankTransactionRepository{scope: t}
}

func (t *memoryTx) Remittances() domain.RemittanceRepository {
	return &memoryRemittanceRepository{scope: t}
}

func (t *memoryTx) Candidates() domain.CandidateRepository {
	return &memoryCandidateRepository{scope: t}
}

// WithinTx joins the enclosing transaction
func (t *memoryTx) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(t)
}

// Seeding. These bypass lifecycle rules and are meant for bootstrapping the
// memory driver and for tests.

func (s *MemoryStore) PutInvoice(inv domain.Invoice) {
	_ = s.write(context.Background(), func(st *memoryState) error {
		st.invoices[inv.ID] = inv
		st.touch(inv.ID)
		return nil
	})
}

func (s *MemoryStore) PutPayment(p domain.Payment) {
	_ = s.write(context.Background(), func(st *memoryState) error {
		st.payments[p.ID] = copyPayment(p)
		st.touch(p.ID)
		return nil
	})
}

func (s *MemoryStore) PutBankAccount(a domain.BankAccount) {
	_ = s.write(context.Background(), func(st *memoryState) error {
		st.accounts[a.ID] = a
		st.touch(a.ID)
		return nil
	})
}

func (s *MemoryStore) PutBankTransaction(bt domain.BankTransaction) {
	bt = copyBankTransaction(bt)
	bt.Recompute()
	_ = s.write(context.Background(), func(st *memoryState) error {
		st.transactions[bt.ID] = bt
		st.touch(bt.ID)
		return nil
	})
}

func (s *MemoryStore) PutRemittance(r domain.Remittance) {
	_ = s.write(context.Background(), func(st *memoryState) error {
		st.remittances[r.ID] = copyRemittance(r)
		st.touch(r.ID)
		return nil
	})
}

// PaymentsForInvoice lists every payment of an invoice, cancelled ones
// included, in creation order
func (s *MemoryStore) PaymentsForInvoice(invoiceID string) []domain.Payment {
	var out []domain.Payment
	_ = s.read(func(st *memoryState) error {
		for _, p := range st.payments {
			if p.InvoiceID == invoiceID {
				out = append(out, copyPayment(p))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return st.created[out[i].ID] < st.created[out[j].ID]
		})
		return nil
	})
	return out
}

// InvoicesForRemittance lists every invoice issued against a remittance,
// cancelled predecessors included, in creation order
func (s *MemoryStore) InvoicesForRemittance(remittanceID string) []domain.Invoice {
	var out []domain.Invoice
	_ = s.read(func(st *memoryState) error {
		for _, inv := range st.invoices {
			if inv.RemittanceID == remittanceID {
				out = append(out, inv)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return st.created[out[i].ID] < st.created[out[j].ID]
		})
		return nil
	})
	return out
}
