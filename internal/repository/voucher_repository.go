package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"remittance-engine/internal/domain"
)

type voucherRepository struct {
	store *PostgresStore
}

const invoiceColumns = `id, company, supplier, grand_total, outstanding_amount, is_paid,
		posting_date, due_date, remittance_id, remittance_issued, status, amended_from`

const paymentColumns = `id, company, party, invoice_id, paid_amount, posting_date,
		bank_account, party_bank_account, status, amended_from`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var (
		inv          domain.Invoice
		remittanceID sql.NullString
		amendedFrom  sql.NullString
	)
	err := row.Scan(
		&inv.ID,
		&inv.Company,
		&inv.Supplier,
		&inv.GrandTotal,
		&inv.OutstandingAmount,
		&inv.IsPaid,
		&inv.PostingDate,
		&inv.DueDate,
		&remittanceID,
		&inv.RemittanceIssued,
		&inv.Status,
		&amendedFrom,
	)
	if err != nil {
		return nil, err
	}
	inv.RemittanceID = remittanceID.String
	inv.AmendedFrom = amendedFrom.String
	return &inv, nil
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p           domain.Payment
		invoiceID   sql.NullString
		partyIBAN   sql.NullString
		amendedFrom sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.Company,
		&p.Party,
		&invoiceID,
		&p.PaidAmount,
		&p.PostingDate,
		&p.BankAccount,
		&partyIBAN,
		&p.Status,
		&amendedFrom,
	)
	if err != nil {
		return nil, err
	}
	p.InvoiceID = invoiceID.String
	p.AmendedFrom = amendedFrom.String
	if partyIBAN.Valid {
		iban := partyIBAN.String
		p.PartyBankAccount = &iban
	}
	return &p, nil
}

func (r *voucherRepository) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return r.getInvoice(ctx, id, false)
}

func (r *voucherRepository) getInvoice(ctx context.Context, id string, forUpdate bool) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM purchase_invoices WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	inv, err := scanInvoice(r.store.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoiceNotFound(id)
	}
	if err != nil {
		r.store.logger.WithError(err).WithField("invoice_id", id).Error("Failed to get invoice")
		return nil, fmt.Errorf("failed to get invoice: %w", mapConflict(err, string(domain.KindPurchaseInvoice), id))
	}
	return inv, nil
}

func (r *voucherRepository) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return r.getPayment(ctx, id, false)
}

func (r *voucherRepository) getPayment(ctx context.Context, id string, forUpdate bool) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_entries WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanPayment(r.store.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, paymentNotFound(id)
	}
	if err != nil {
		r.store.logger.WithError(err).WithField("payment_id", id).Error("Failed to get payment")
		return nil, fmt.Errorf("failed to get payment: %w", mapConflict(err, string(domain.KindPaymentEntry), id))
	}
	return p, nil
}

func (r *voucherRepository) FindPaymentsForInvoice(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_entries
		WHERE invoice_id = $1 AND status <> 'CANCELLED'
		ORDER BY posting_date DESC, created_at DESC
	`

	rows, err := r.store.q.QueryContext(ctx, query, invoiceID)
	if err != nil {
		r.store.logger.WithError(err).WithField("invoice_id", invoiceID).Error("Failed to query payments for invoice")
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *voucherRepository) ListRemittanceInvoices(ctx context.Context, remittanceID string) ([]string, error) {
	query := `
		SELECT id
		FROM purchase_invoices
		WHERE remittance_id = $1 AND remittance_issued AND status <> 'CANCELLED'
		ORDER BY posting_date, id
	`

	rows, err := r.store.q.QueryContext(ctx, query, remittanceID)
	if err != nil {
		r.store.logger.WithError(err).WithField("remittance_id", remittanceID).Error("Failed to list remittance invoices")
		return nil, fmt.Errorf("failed to list remittance invoices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan invoice id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *voucherRepository) CreatePayment(ctx context.Context, p *domain.Payment) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = domain.Draft
	p.PostingDate = domain.DateOnly(p.PostingDate)

	query := `
		INSERT INTO payment_entries (
			id, company, party, invoice_id, paid_amount, posting_date,
			bank_account, party_bank_account, status, amended_from
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.store.q.ExecContext(ctx, query,
		p.ID,
		p.Company,
		p.Party,
		nullString(p.InvoiceID),
		p.PaidAmount,
		p.PostingDate,
		p.BankAccount,
		nullStringPtr(p.PartyBankAccount),
		p.Status,
		nullString(p.AmendedFrom),
	)
	if err != nil {
		r.store.logger.WithError(err).WithField("invoice_id", p.InvoiceID).Error("Failed to create payment")
		return "", fmt.Errorf("failed to create payment: %w", err)
	}
	return p.ID, nil
}

func (r *voucherRepository) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	return r.store.inTx(ctx, func(tx *PostgresStore) error {
		vouchers := &voucherRepository{store: tx}
		current, err := vouchers.getPayment(ctx, p.ID, true)
		if err != nil {
			return err
		}
		if current.Status != domain.Draft {
			return domain.InconsistentStateError{Entity: string(domain.KindPaymentEntry), ID: p.ID, Reason: "only draft payments can be updated"}
		}

		query := `
			UPDATE payment_entries
			SET bank_account = $1, posting_date = $2, party_bank_account = $3
			WHERE id = $4
		`
		if _, err := tx.q.ExecContext(ctx, query, p.BankAccount, domain.DateOnly(p.PostingDate), nullStringPtr(p.PartyBankAccount), p.ID); err != nil {
			tx.logger.WithError(err).WithField("payment_id", p.ID).Error("Failed to update payment")
			return fmt.Errorf("failed to update payment: %w", err)
		}
		return nil
	})
}

func (r *voucherRepository) Submit(ctx context.Context, ref domain.VoucherRef) error {
	return r.transition(ctx, ref, domain.Submitted)
}

func (r *voucherRepository) Cancel(ctx context.Context, ref domain.VoucherRef) error {
	return r.transition(ctx, ref, domain.Cancelled)
}

func (r *voucherRepository) transition(ctx context.Context, ref domain.VoucherRef, next domain.DocStatus) error {
	var table string
	switch ref.Kind {
	case domain.KindPurchaseInvoice:
		table = "purchase_invoices"
	case domain.KindPaymentEntry:
		table = "payment_entries"
	default:
		return domain.InconsistentStateError{Entity: string(ref.Kind), ID: ref.ID, Reason: "kind has no lifecycle"}
	}

	return r.store.inTx(ctx, func(tx *PostgresStore) error {
		var current domain.DocStatus
		err := tx.q.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = $1 FOR UPDATE`, ref.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundError{Entity: string(ref.Kind), ID: ref.ID}
		}
		if err != nil {
			return fmt.Errorf("failed to lock %s: %w", ref, mapConflict(err, string(ref.Kind), ref.ID))
		}
		if err := current.CheckTransition(ref, next); err != nil {
			return err
		}

		if _, err := tx.q.ExecContext(ctx, `UPDATE `+table+` SET status = $1 WHERE id = $2`, next, ref.ID); err != nil {
			tx.logger.WithError(err).WithField("voucher", ref.String()).Error("Failed to change voucher status")
			return fmt.Errorf("failed to change status of %s: %w", ref, err)
		}
		return nil
	})
}

func (r *voucherRepository) AmendInvoice(ctx context.Context, id string, overrides domain.InvoiceAmendment) (string, error) {
	var successorID string
	err := r.store.inTx(ctx, func(tx *PostgresStore) error {
		vouchers := &voucherRepository{store: tx}
		inv, err := vouchers.getInvoice(ctx, id, true)
		if err != nil {
			return err
		}
		if err := inv.Status.CheckTransition(inv.Ref(), domain.Cancelled); err != nil {
			return err
		}

		if _, err := tx.q.ExecContext(ctx, `UPDATE purchase_invoices SET status = $1 WHERE id = $2`, domain.Cancelled, id); err != nil {
			return fmt.Errorf("failed to cancel invoice: %w", err)
		}

		successor := overrides.Apply(*inv)
		successor.ID = uuid.NewString()

		query := `
			INSERT INTO purchase_invoices (
				id, company, supplier, grand_total, outstanding_amount, is_paid,
				posting_date, due_date, remittance_id, remittance_issued, status, amended_from
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		_, err = tx.q.ExecContext(ctx, query,
			successor.ID,
			successor.Company,
			successor.Supplier,
			successor.GrandTotal,
			successor.OutstandingAmount,
			successor.IsPaid,
			successor.PostingDate,
			successor.DueDate,
			nullString(successor.RemittanceID),
			successor.RemittanceIssued,
			successor.Status,
			successor.AmendedFrom,
		)
		if err != nil {
			tx.logger.WithError(err).WithField("invoice_id", id).Error("Failed to create amended invoice")
			return fmt.Errorf("failed to create amended invoice: %w", err)
		}
		successorID = successor.ID
		return nil
	})
	return successorID, err
}

const bankAccountColumns = `id, bank, iban, company, party, is_default`

func scanBankAccount(row rowScanner) (*domain.BankAccount, error) {
	var (
		a     domain.BankAccount
		party sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Bank, &a.IBAN, &a.Company, &party, &a.IsDefault); err != nil {
		return nil, err
	}
	a.Party = party.String
	return &a, nil
}

func (r *voucherRepository) GetBankAccount(ctx context.Context, id string) (*domain.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id = $1`

	a, err := scanBankAccount(r.store.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError{Entity: "Bank Account", ID: id}
	}
	if err != nil {
		r.store.logger.WithError(err).WithField("bank_account", id).Error("Failed to get bank account")
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}
	return a, nil
}

// ResolvePartyBankAccount prefers the party's accounts in the company, then
// any of its accounts, default accounts first within each group
func (r *voucherRepository) ResolvePartyBankAccount(ctx context.Context, party, company string) (*domain.BankAccount, error) {
	if party == "" {
		return nil, nil
	}

	query := `
		SELECT ` + bankAccountColumns + `
		FROM bank_accounts
		WHERE party = $1
		ORDER BY (company = $2) DESC, is_default DESC, id
		LIMIT 1
	`

	a, err := scanBankAccount(r.store.q.QueryRowContext(ctx, query, party, company))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.ExternalResolutionFailure{Party: party, Company: company, Err: err}
	}
	return a, nil
}
