package service

import (
	"context"
	"fmt"

	"remittance-engine/internal/domain"
)

// VoucherResolver loads the kind-independent view of one voucher
type VoucherResolver func(ctx context.Context, store domain.Store, id string) (domain.VoucherSummary, error)

// ResolverRegistry maps each voucher kind to its resolver
type ResolverRegistry map[domain.VoucherKind]VoucherResolver

// DefaultResolvers covers every kind the engine knows. Invoices resolve to
// their outstanding amount, the part a bank movement can still settle.
func DefaultResolvers() ResolverRegistry {
	return ResolverRegistry{
		domain.KindPurchaseInvoice: func(ctx context.Context, store domain.Store, id string) (domain.VoucherSummary, error) {
			inv, err := store.Vouchers().GetInvoice(ctx, id)
			if err != nil {
				return domain.VoucherSummary{}, err
			}
			summary := inv.Summary()
			summary.Amount = inv.OutstandingAmount
			return summary, nil
		},
		domain.KindPaymentEntry: func(ctx context.Context, store domain.Store, id string) (domain.VoucherSummary, error) {
			p, err := store.Vouchers().GetPayment(ctx, id)
			if err != nil {
				return domain.VoucherSummary{}, err
			}
			return p.Summary(), nil
		},
		domain.KindRemittance: func(ctx context.Context, store domain.Store, id string) (domain.VoucherSummary, error) {
			r, err := store.Remittances().Get(ctx, id)
			if err != nil {
				return domain.VoucherSummary{}, err
			}
			return r.Summary(), nil
		},
	}
}

func (r ResolverRegistry) Resolve(ctx context.Context, store domain.Store, ref domain.VoucherRef) (domain.VoucherSummary, error) {
	resolve, ok := r[ref.Kind]
	if !ok {
		return domain.VoucherSummary{}, fmt.Errorf("%w: no resolver for voucher kind %q", domain.ErrInvalidInput, ref.Kind)
	}
	return resolve(ctx, store, ref.ID)
}
