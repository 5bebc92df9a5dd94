package repository

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remittance-engine/internal/domain"
)

type memoryVoucherRepository struct {
	scope memoryScope
}

func invoiceNotFound(id string) error {
	return domain.NotFoundError{Entity: string(domain.KindPurchaseInvoice), ID: id}
}

func paymentNotFound(id string) error {
	return domain.NotFoundError{Entity: string(domain.KindPaymentEntry), ID: id}
}

func (r *memoryVoucherRepository) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	var out *domain.Invoice
	err := r.scope.read(func(st *memoryState) error {
		inv, ok := st.invoices[id]
		if !ok {
			return invoiceNotFound(id)
		}
		out = &inv
		return nil
	})
	return out, err
}

func (r *memoryVoucherRepository) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	var out *domain.Payment
	err := r.scope.read(func(st *memoryState) error {
		p, ok := st.payments[id]
		if !ok {
			return paymentNotFound(id)
		}
		p = copyPayment(p)
		out = &p
		return nil
	})
	return out, err
}

func (r *memoryVoucherRepository) FindPaymentsForInvoice(_ context.Context, invoiceID string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.scope.read(func(st *memoryState) error {
		for _, p := range st.payments {
			if p.InvoiceID == invoiceID && p.Status != domain.Cancelled {
				out = append(out, copyPayment(p))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].PostingDate.Equal(out[j].PostingDate) {
				return out[i].PostingDate.After(out[j].PostingDate)
			}
			return st.created[out[i].ID] > st.created[out[j].ID]
		})
		return nil
	})
	return out, err
}

func (r *memoryVoucherRepository) ListRemittanceInvoices(_ context.Context, remittanceID string) ([]string, error) {
	var found []domain.Invoice
	err := r.scope.read(func(st *memoryState) error {
		for _, inv := range st.invoices {
			if inv.RemittanceID == remittanceID && inv.RemittanceIssued && inv.Status != domain.Cancelled {
				found = append(found, inv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].PostingDate.Equal(found[j].PostingDate) {
			return found[i].PostingDate.Before(found[j].PostingDate)
		}
		return found[i].ID < found[j].ID
	})
	ids := make([]string, len(found))
	for i, inv := range found {
		ids[i] = inv.ID
	}
	return ids, nil
}

func (r *memoryVoucherRepository) CreatePayment(ctx context.Context, p *domain.Payment) (string, error) {
	err := r.scope.write(ctx, func(st *memoryState) error {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.Status = domain.Draft
		p.PostingDate = domain.DateOnly(p.PostingDate)
		st.payments[p.ID] = copyPayment(*p)
		st.touch(p.ID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (r *memoryVoucherRepository) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	return r.scope.write(ctx, func(st *memoryState) error {
		current, ok := st.payments[p.ID]
		if !ok {
			return paymentNotFound(p.ID)
		}
		if current.Status != domain.Draft {
			return domain.InconsistentStateError{Entity: string(domain.KindPaymentEntry), ID: p.ID, Reason: "only draft payments can be updated"}
		}
		current.BankAccount = p.BankAccount
		current.PostingDate = domain.DateOnly(p.PostingDate)
		current.PartyBankAccount = p.PartyBankAccount
		st.payments[p.ID] = copyPayment(current)
		return nil
	})
}

func (r *memoryVoucherRepository) Submit(ctx context.Context, ref domain.VoucherRef) error {
	return r.transition(ctx, ref, domain.Submitted)
}

func (r *memoryVoucherRepository) Cancel(ctx context.Context, ref domain.VoucherRef) error {
	return r.transition(ctx, ref, domain.Cancelled)
}

func (r *memoryVoucherRepository) transition(ctx context.Context, ref domain.VoucherRef, next domain.DocStatus) error {
	return r.scope.write(ctx, func(st *memoryState) error {
		switch ref.Kind {
		case domain.KindPurchaseInvoice:
			inv, ok := st.invoices[ref.ID]
			if !ok {
				return invoiceNotFound(ref.ID)
			}
			if err := inv.Status.CheckTransition(ref, next); err != nil {
				return err
			}
			inv.Status = next
			st.invoices[ref.ID] = inv
		case domain.KindPaymentEntry:
			p, ok := st.payments[ref.ID]
			if !ok {
				return paymentNotFound(ref.ID)
			}
			if err := p.Status.CheckTransition(ref, next); err != nil {
				return err
			}
			p.Status = next
			st.payments[ref.ID] = p
		default:
			return domain.InconsistentStateError{Entity: string(ref.Kind), ID: ref.ID, Reason: "kind has no lifecycle"}
		}
		return nil
	})
}

func (r *memoryVoucherRepository) AmendInvoice(ctx context.Context, id string, overrides domain.InvoiceAmendment) (string, error) {
	var successorID string
	err := r.scope.write(ctx, func(st *memoryState) error {
		inv, ok := st.invoices[id]
		if !ok {
			return invoiceNotFound(id)
		}
		if err := inv.Status.CheckTransition(inv.Ref(), domain.Cancelled); err != nil {
			return err
		}
		successor := overrides.Apply(inv)
		successor.ID = uuid.NewString()

		inv.Status = domain.Cancelled
		st.invoices[id] = inv
		st.invoices[successor.ID] = successor
		st.touch(successor.ID)
		successorID = successor.ID
		return nil
	})
	return successorID, err
}

func (r *memoryVoucherRepository) GetBankAccount(_ context.Context, id string) (*domain.BankAccount, error) {
	var out *domain.BankAccount
	err := r.scope.read(func(st *memoryState) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.NotFoundError{Entity: "Bank Account", ID: id}
		}
		out = &a
		return nil
	})
	return out, err
}

// ResolvePartyBankAccount tries the party's accounts in the same company,
// then any account of the party. Default accounts win within each step.
func (r *memoryVoucherRepository) ResolvePartyBankAccount(_ context.Context, party, company string) (*domain.BankAccount, error) {
	var owned []domain.BankAccount
	err := r.scope.read(func(st *memoryState) error {
		for _, a := range st.accounts {
			if party != "" && a.Party == party {
				owned = append(owned, a)
			}
		}
		return nil
	})
	if err != nil || len(owned) == 0 {
		return nil, err
	}

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].IsDefault != owned[j].IsDefault {
			return owned[i].IsDefault
		}
		return owned[i].ID < owned[j].ID
	})
	for _, a := range owned {
		if a.Company == company {
			a := a
			return &a, nil
		}
	}
	return &owned[0], nil
}

type memoryBankTransactionRepository struct {
	scope memoryScope
}

func bankTransactionNotFound(id string) error {
	return domain.NotFoundError{Entity: bankTransactionEntity, ID: id}
}

func (r *memoryBankTransactionRepository) Get(_ context.Context, id string) (*domain.BankTransaction, error) {
	var out *domain.BankTransaction
	err := r.scope.read(func(st *memoryState) error {
		bt, ok := st.transactions[id]
		if !ok {
			return bankTransactionNotFound(id)
		}
		bt = copyBankTransaction(bt)
		out = &bt
		return nil
	})
	return out, err
}

func (r *memoryBankTransactionRepository) FindByAllocation(_ context.Context, ref domain.VoucherRef) (*domain.BankTransaction, error) {
	var out *domain.BankTransaction
	err := r.scope.read(func(st *memoryState) error {
		ids := make([]string, 0, len(st.transactions))
		for id := range st.transactions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			bt := st.transactions[id]
			if bt.HasAllocation(ref) {
				bt = copyBankTransaction(bt)
				out = &bt
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryBankTransactionRepository) Allocate(ctx context.Context, id string, entries []domain.Allocation) (*domain.BankTransaction, error) {
	var out *domain.BankTransaction
	err := r.scope.write(ctx, func(st *memoryState) error {
		bt, ok := st.transactions[id]
		if !ok {
			return bankTransactionNotFound(id)
		}
		bt = copyBankTransaction(bt)
		if _, _, err := bt.Allocate(entries); err != nil {
			return err
		}
		bt.Version++
		st.transactions[id] = bt
		result := copyBankTransaction(bt)
		out = &result
		return nil
	})
	return out, err
}

func (r *memoryBankTransactionRepository) RemoveAllocation(ctx context.Context, id string, ref domain.VoucherRef) (*domain.BankTransaction, error) {
	var out *domain.BankTransaction
	err := r.scope.write(ctx, func(st *memoryState) error {
		bt, ok := st.transactions[id]
		if !ok {
			return bankTransactionNotFound(id)
		}
		bt = copyBankTransaction(bt)
		if bt.RemoveAllocation(ref) {
			bt.Version++
		}
		st.transactions[id] = bt
		result := copyBankTransaction(bt)
		out = &result
		return nil
	})
	return out, err
}

type memoryRemittanceRepository struct {
	scope memoryScope
}

func (r *memoryRemittanceRepository) Get(_ context.Context, id string) (*domain.Remittance, error) {
	var out *domain.Remittance
	err := r.scope.read(func(st *memoryState) error {
		rem, ok := st.remittances[id]
		if !ok {
			return domain.NotFoundError{Entity: string(domain.KindRemittance), ID: id}
		}
		rem = copyRemittance(rem)
		out = &rem
		return nil
	})
	return out, err
}

func (r *memoryRemittanceRepository) Save(ctx context.Context, rem *domain.Remittance) error {
	return r.scope.write(ctx, func(st *memoryState) error {
		current, ok := st.remittances[rem.ID]
		if !ok {
			return domain.NotFoundError{Entity: string(domain.KindRemittance), ID: rem.ID}
		}
		if current.Version != rem.Version {
			return domain.ConcurrencyConflict{Entity: string(domain.KindRemittance), ID: rem.ID}
		}
		rem.Version++
		st.remittances[rem.ID] = copyRemittance(*rem)
		return nil
	})
}

type memoryCandidateRepository struct {
	scope memoryScope
}

// QueryCandidates mirrors the SQL retrieval: unallocated submitted
// vouchers of the kind, ordered by posting date
func (r *memoryCandidateRepository) QueryCandidates(_ context.Context, kind domain.VoucherKind, q domain.CandidateQuery) ([]domain.MatchCandidate, error) {
	var out []domain.MatchCandidate
	err := r.scope.read(func(st *memoryState) error {
		allocated := make(map[domain.VoucherRef]bool)
		for _, bt := range st.transactions {
			for _, a := range bt.Allocations {
				allocated[a.Voucher] = true
			}
		}

		switch kind {
		case domain.KindPaymentEntry:
			for _, p := range st.payments {
				if p.Status != domain.Submitted || allocated[p.Ref()] {
					continue
				}
				if q.BankAccount != "" && p.BankAccount != q.BankAccount {
					continue
				}
				if !matchesCommon(q, p.Company, p.Party) {
					continue
				}
				out = appendCandidate(out, q, domain.MatchCandidate{Kind: kind, ID: p.ID, Amount: p.PaidAmount, Party: p.Party, PostingDate: p.PostingDate})
			}
		case domain.KindPurchaseInvoice:
			for _, inv := range st.invoices {
				if inv.Status != domain.Submitted || allocated[inv.Ref()] || !inv.OutstandingAmount.IsPositive() {
					continue
				}
				if !matchesCommon(q, inv.Company, inv.Supplier) {
					continue
				}
				out = appendCandidate(out, q, domain.MatchCandidate{Kind: kind, ID: inv.ID, Amount: inv.OutstandingAmount, Party: inv.Supplier, PostingDate: inv.PostingDate})
			}
		case domain.KindRemittance:
			for _, rem := range st.remittances {
				if rem.FullySettled() {
					continue
				}
				// remittances carry no party of their own
				if q.Company != "" && rem.Company != q.Company {
					continue
				}
				out = appendCandidate(out, q, domain.MatchCandidate{Kind: kind, ID: rem.ID, Amount: rem.DeclaredTotal, PostingDate: rem.CreatedOn})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		if !out[i].PostingDate.Equal(out[j].PostingDate) {
			return out[i].PostingDate.Before(out[j].PostingDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchesCommon(q domain.CandidateQuery, company, party string) bool {
	if q.Company != "" && company != q.Company {
		return false
	}
	return q.Party == "" || party == q.Party
}

func appendCandidate(out []domain.MatchCandidate, q domain.CandidateQuery, c domain.MatchCandidate) []domain.MatchCandidate {
	if !q.InWindow(c.PostingDate) {
		return out
	}
	exact := c.Amount.Equal(q.Amount)
	if q.ExactMatch && !exact {
		return out
	}
	if !q.ExactMatch && !c.Amount.GreaterThan(decimal.Zero) {
		return out
	}
	if exact {
		c.Rank = domain.RankExactMatch
	}
	return append(out, c)
}
