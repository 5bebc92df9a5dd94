package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"remittance-engine/internal/domain"
)

type candidateRepository struct {
	store *PostgresStore
}

// candidateSource describes how one voucher kind maps onto the retrieval query
type candidateSource struct {
	table     string
	amount    string
	party     string // empty when the kind has no party column
	date      string
	bank      string // empty when the kind is not tied to a paying account
	company   string
	predicate string
}

var candidateSources = map[domain.VoucherKind]candidateSource{
	domain.KindPaymentEntry: {
		table:   "payment_entries v",
		amount:  "v.paid_amount",
		party:   "v.party",
		date:    "v.posting_date",
		bank:    "v.bank_account",
		company: "v.company",
		predicate: `v.status = 'SUBMITTED' AND NOT EXISTS (
			SELECT 1 FROM bank_transaction_allocations a
			WHERE a.voucher_kind = 'Payment Entry' AND a.voucher_id = v.id)`,
	},
	domain.KindPurchaseInvoice: {
		table:   "purchase_invoices v",
		amount:  "v.outstanding_amount",
		party:   "v.supplier",
		date:    "v.posting_date",
		company: "v.company",
		predicate: `v.status = 'SUBMITTED' AND v.outstanding_amount > 0 AND NOT EXISTS (
			SELECT 1 FROM bank_transaction_allocations a
			WHERE a.voucher_kind = 'Purchase Invoice' AND a.voucher_id = v.id)`,
	},
	domain.KindRemittance: {
		table:     "remittances v",
		amount:    "v.declared_total",
		date:      "v.created_on",
		company:   "v.company",
		predicate: "v.localized_total <> v.declared_total",
	},
}

// buildCandidateQuery renders the rank-tagged query for one kind. Rank 1 is
// an exact amount match; exactMatch keeps only those rows.
func buildCandidateQuery(kind domain.VoucherKind, q domain.CandidateQuery) (string, []any, error) {
	src, ok := candidateSources[kind]
	if !ok {
		return "", nil, fmt.Errorf("unknown voucher kind: %q", kind)
	}

	args := []any{q.Amount}
	where := []string{src.predicate}
	add := func(format string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(format, len(args)))
	}

	if q.ExactMatch {
		where = append(where, src.amount+" = $1")
	} else {
		where = append(where, src.amount+" > 0")
	}
	if src.bank != "" && q.BankAccount != "" {
		add(src.bank+" = $%d", q.BankAccount)
	}
	if q.Company != "" {
		add(src.company+" = $%d", q.Company)
	}
	if src.party != "" && q.Party != "" {
		add(src.party+" = $%d", q.Party)
	}
	if q.FromDate != nil {
		add(src.date+" >= $%d", domain.DateOnly(*q.FromDate))
	}
	if q.ToDate != nil {
		add(src.date+" <= $%d", domain.DateOnly(*q.ToDate))
	}

	party := "''"
	if src.party != "" {
		party = src.party
	}

	query := fmt.Sprintf(`
		SELECT v.id, %[1]s, %[2]s, %[3]s,
			CASE WHEN %[1]s = $1 THEN 1 ELSE 0 END AS rank
		FROM %[4]s
		WHERE %[5]s
		ORDER BY rank DESC, %[3]s, v.id`,
		src.amount, party, src.date, src.table, strings.Join(where, "\n\t\t\tAND "))

	return query, args, nil
}

func (r *candidateRepository) QueryCandidates(ctx context.Context, kind domain.VoucherKind, q domain.CandidateQuery) ([]domain.MatchCandidate, error) {
	query, args, err := buildCandidateQuery(kind, q)
	if err != nil {
		return nil, err
	}

	rows, err := r.store.q.QueryContext(ctx, query, args...)
	if err != nil {
		r.store.logger.WithError(err).WithField("voucher_kind", kind).Error("Failed to query candidates")
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]domain.MatchCandidate, 0)
	for rows.Next() {
		c := domain.MatchCandidate{Kind: kind}
		var party sql.NullString
		if err := rows.Scan(&c.ID, &c.Amount, &party, &c.PostingDate, &c.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Party = party.String
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
