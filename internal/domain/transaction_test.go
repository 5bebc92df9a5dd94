package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payment(id string) VoucherRef {
	return VoucherRef{Kind: KindPaymentEntry, ID: id}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		allocated string
		entries   int
		want      BankTransactionStatus
	}{
		{"no entries", "100", "0", 0, Unreconciled},
		{"zero allocated", "100", "0", 1, Unreconciled},
		{"partial", "100", "40", 1, Pending},
		{"single full", "100", "100", 1, Matched},
		{"several full", "100", "100", 2, Reconciled},
		{"outgoing uses absolute amount", "-100", "100", 1, Matched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStatus(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.allocated), tt.entries)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBankTransaction_Allocate(t *testing.T) {
	t.Run("clips at unallocated amount and drops the rest", func(t *testing.T) {
		bt := &BankTransaction{ID: "BT-1", Amount: decimal.NewFromInt(100)}

		applied, dropped, err := bt.Allocate([]Allocation{
			{Voucher: payment("PE-1"), Amount: decimal.NewFromInt(70)},
			{Voucher: payment("PE-2"), Amount: decimal.NewFromInt(50)},
			{Voucher: payment("PE-3"), Amount: decimal.NewFromInt(10)},
		})

		require.NoError(t, err)
		require.Len(t, applied, 2)
		assert.True(t, applied[1].Amount.Equal(decimal.NewFromInt(30)))
		require.Len(t, dropped, 1)
		assert.Equal(t, payment("PE-3"), dropped[0].Voucher)
		assert.True(t, bt.AllocatedAmount.Equal(decimal.NewFromInt(100)))
		assert.True(t, bt.UnallocatedAmount.IsZero())
		assert.Equal(t, Reconciled, bt.Status)
	})

	t.Run("continues from existing allocations", func(t *testing.T) {
		bt := &BankTransaction{
			ID:          "BT-1",
			Amount:      decimal.NewFromInt(100),
			Allocations: []Allocation{{Voucher: payment("PE-1"), Amount: decimal.NewFromInt(60)}},
		}

		applied, _, err := bt.Allocate([]Allocation{{Voucher: payment("PE-2"), Amount: decimal.NewFromInt(20)}})

		require.NoError(t, err)
		require.Len(t, applied, 1)
		assert.True(t, bt.UnallocatedAmount.Equal(decimal.NewFromInt(20)))
		assert.Equal(t, Pending, bt.Status)
	})

	t.Run("rejects a voucher already allocated", func(t *testing.T) {
		bt := &BankTransaction{
			ID:          "BT-1",
			Amount:      decimal.NewFromInt(100),
			Allocations: []Allocation{{Voucher: payment("PE-1"), Amount: decimal.NewFromInt(60)}},
		}

		_, _, err := bt.Allocate([]Allocation{
			{Voucher: payment("PE-2"), Amount: decimal.NewFromInt(10)},
			{Voucher: payment("PE-1"), Amount: decimal.NewFromInt(10)},
		})

		require.Error(t, err)
		assert.True(t, IsInconsistentState(err))
		assert.Len(t, bt.Allocations, 1)
	})

	t.Run("rejects duplicates within one batch", func(t *testing.T) {
		bt := &BankTransaction{ID: "BT-1", Amount: decimal.NewFromInt(100)}

		_, _, err := bt.Allocate([]Allocation{
			{Voucher: payment("PE-1"), Amount: decimal.NewFromInt(10)},
			{Voucher: payment("PE-1"), Amount: decimal.NewFromInt(10)},
		})

		assert.True(t, IsInconsistentState(err))
		assert.Empty(t, bt.Allocations)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		bt := &BankTransaction{ID: "BT-1", Amount: decimal.NewFromInt(100)}

		_, _, err := bt.Allocate([]Allocation{{Voucher: payment("PE-1"), Amount: decimal.Zero}})

		assert.True(t, IsInconsistentState(err))
	})
}

func TestBankTransaction_RemoveAllocation(t *testing.T) {
	bt := &BankTransaction{
		ID:     "BT-1",
		Amount: decimal.NewFromInt(100),
		Allocations: []Allocation{
			{Voucher: payment("PE-1"), Amount: decimal.NewFromInt(60)},
			{Voucher: payment("PE-2"), Amount: decimal.NewFromInt(40)},
		},
	}
	bt.Recompute()
	assert.Equal(t, Reconciled, bt.Status)

	assert.True(t, bt.RemoveAllocation(payment("PE-1")))
	assert.Equal(t, Pending, bt.Status)
	assert.True(t, bt.UnallocatedAmount.Equal(decimal.NewFromInt(60)))

	assert.False(t, bt.RemoveAllocation(payment("PE-1")))

	assert.True(t, bt.RemoveAllocation(payment("PE-2")))
	assert.Equal(t, Unreconciled, bt.Status)
	assert.Empty(t, bt.Allocations)
}
