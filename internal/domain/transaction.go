package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankTransactionStatus represents the reconciliation state of a bank movement
type BankTransactionStatus string

const (
	Unreconciled BankTransactionStatus = "UNRECONCILED"
	Pending      BankTransactionStatus = "PENDING"
	Reconciled   BankTransactionStatus = "RECONCILED"
	Matched      BankTransactionStatus = "MATCHED"
)

// Allocation links part of a bank transaction to one voucher
type Allocation struct {
	Voucher VoucherRef      `json:"voucher"`
	Amount  decimal.Decimal `json:"amount"`
}

// BankTransaction represents one movement on a company bank account
type BankTransaction struct {
	ID                string                `json:"id"`
	Company           string                `json:"company"`
	BankAccount       string                `json:"bank_account"`
	Date              time.Time             `json:"date"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          string                `json:"currency"`
	Status            BankTransactionStatus `json:"status"`
	AllocatedAmount   decimal.Decimal       `json:"allocated_amount"`
	UnallocatedAmount decimal.Decimal       `json:"unallocated_amount"`
	Allocations       []Allocation          `json:"allocations"`
	Version           int                   `json:"version"`
}

func (bt *BankTransaction) HasAllocation(ref VoucherRef) bool {
	for _, a := range bt.Allocations {
		if a.Voucher == ref {
			return true
		}
	}
	return false
}

// Allocate appends entries in order. Each entry takes at most the amount
// still unallocated; entries arriving after the transaction is exhausted are
// returned as not applied. A voucher already allocated here is rejected and
// nothing is applied.
func (bt *BankTransaction) Allocate(entries []Allocation) (applied, dropped []Allocation, err error) {
	seen := make(map[VoucherRef]bool, len(entries))
	for _, e := range entries {
		if e.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, nil, InconsistentStateError{Entity: string(e.Voucher.Kind), ID: e.Voucher.ID, Reason: "allocation amount must be positive"}
		}
		if seen[e.Voucher] || bt.HasAllocation(e.Voucher) {
			return nil, nil, InconsistentStateError{Entity: string(e.Voucher.Kind), ID: e.Voucher.ID, Reason: "voucher already allocated to bank transaction " + bt.ID}
		}
		seen[e.Voucher] = true
	}

	bt.Recompute()
	remaining := bt.UnallocatedAmount
	for _, e := range entries {
		if !remaining.IsPositive() {
			dropped = append(dropped, e)
			continue
		}
		amount := decimal.Min(e.Amount, remaining)
		remaining = remaining.Sub(amount)
		a := Allocation{Voucher: e.Voucher, Amount: amount}
		bt.Allocations = append(bt.Allocations, a)
		applied = append(applied, a)
	}
	bt.Recompute()
	return applied, dropped, nil
}

// RemoveAllocation drops the entry for ref and reports whether one existed
func (bt *BankTransaction) RemoveAllocation(ref VoucherRef) bool {
	kept := bt.Allocations[:0]
	removed := false
	for _, a := range bt.Allocations {
		if a.Voucher == ref {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	bt.Allocations = kept
	bt.Recompute()
	return removed
}

// Recompute derives allocated/unallocated amounts and status from the
// allocation list
func (bt *BankTransaction) Recompute() {
	allocated := decimal.Zero
	for _, a := range bt.Allocations {
		allocated = allocated.Add(a.Amount)
	}
	bt.AllocatedAmount = allocated
	bt.UnallocatedAmount = bt.Amount.Abs().Sub(allocated)
	bt.Status = DeriveStatus(bt.Amount, allocated, len(bt.Allocations))
}

// DeriveStatus maps allocation progress onto a status
func DeriveStatus(amount, allocated decimal.Decimal, entries int) BankTransactionStatus {
	switch {
	case entries == 0 || allocated.IsZero():
		return Unreconciled
	case allocated.LessThan(amount.Abs()):
		return Pending
	case entries == 1:
		return Matched
	default:
		return Reconciled
	}
}
