package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
)

type bankTransactionRepository struct {
	store *PostgresStore
}

const bankTransactionEntity = "Bank Transaction"

func (r *bankTransactionRepository) Get(ctx context.Context, id string) (*domain.BankTransaction, error) {
	return r.get(ctx, id, false)
}

func (r *bankTransactionRepository) get(ctx context.Context, id string, forUpdate bool) (*domain.BankTransaction, error) {
	query := `
		SELECT id, company, bank_account, date, amount, currency, status,
			allocated_amount, unallocated_amount, version
		FROM bank_transactions
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var bt domain.BankTransaction
	err := r.store.q.QueryRowContext(ctx, query, id).Scan(
		&bt.ID,
		&bt.Company,
		&bt.BankAccount,
		&bt.Date,
		&bt.Amount,
		&bt.Currency,
		&bt.Status,
		&bt.AllocatedAmount,
		&bt.UnallocatedAmount,
		&bt.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bankTransactionNotFound(id)
	}
	if err != nil {
		r.store.logger.WithError(err).WithField("bank_transaction_id", id).Error("Failed to get bank transaction")
		return nil, fmt.Errorf("failed to get bank transaction: %w", mapConflict(err, bankTransactionEntity, id))
	}

	allocations, err := r.allocations(ctx, id)
	if err != nil {
		return nil, err
	}
	bt.Allocations = allocations
	return &bt, nil
}

func (r *bankTransactionRepository) allocations(ctx context.Context, id string) ([]domain.Allocation, error) {
	query := `
		SELECT voucher_kind, voucher_id, amount
		FROM bank_transaction_allocations
		WHERE bank_transaction_id = $1
		ORDER BY position
	`

	rows, err := r.store.q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	allocations := make([]domain.Allocation, 0)
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.Voucher.Kind, &a.Voucher.ID, &a.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func (r *bankTransactionRepository) FindByAllocation(ctx context.Context, ref domain.VoucherRef) (*domain.BankTransaction, error) {
	query := `
		SELECT bank_transaction_id
		FROM bank_transaction_allocations
		WHERE voucher_kind = $1 AND voucher_id = $2
		ORDER BY bank_transaction_id
		LIMIT 1
	`

	var id string
	err := r.store.q.QueryRowContext(ctx, query, ref.Kind, ref.ID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.store.logger.WithError(err).WithField("voucher", ref.String()).Error("Failed to find allocation")
		return nil, fmt.Errorf("failed to find allocation: %w", err)
	}
	return r.Get(ctx, id)
}

// Allocate locks the row, applies the entries in order and writes back the
// derived amounts and status
func (r *bankTransactionRepository) Allocate(ctx context.Context, id string, entries []domain.Allocation) (*domain.BankTransaction, error) {
	var out *domain.BankTransaction
	err := r.store.inTx(ctx, func(tx *PostgresStore) error {
		repo := &bankTransactionRepository{store: tx}
		bt, err := repo.get(ctx, id, true)
		if err != nil {
			return err
		}

		applied, dropped, err := bt.Allocate(entries)
		if err != nil {
			return err
		}

		// positions left behind by removed entries are never reused
		var position int
		next := `SELECT COALESCE(MAX(position), -1) + 1 FROM bank_transaction_allocations WHERE bank_transaction_id = $1`
		if err := tx.q.QueryRowContext(ctx, next, id).Scan(&position); err != nil {
			tx.logger.WithError(err).WithField("bank_transaction_id", id).Error("Failed to read next allocation position")
			return fmt.Errorf("failed to read next allocation position: %w", err)
		}

		insert := `
			INSERT INTO bank_transaction_allocations (bank_transaction_id, position, voucher_kind, voucher_id, amount)
			VALUES ($1, $2, $3, $4, $5)
		`
		for i, a := range applied {
			if _, err := tx.q.ExecContext(ctx, insert, id, position+i, a.Voucher.Kind, a.Voucher.ID, a.Amount); err != nil {
				tx.logger.WithError(err).WithFields(logrus.Fields{
					"bank_transaction_id": id,
					"voucher":             a.Voucher.String(),
				}).Error("Failed to insert allocation")
				return fmt.Errorf("failed to insert allocation: %w", mapConflict(err, bankTransactionEntity, id))
			}
		}
		if len(dropped) > 0 {
			tx.logger.WithFields(logrus.Fields{
				"bank_transaction_id": id,
				"dropped":             len(dropped),
			}).Info("Bank transaction exhausted before all allocations applied")
		}

		if err := repo.writeTotals(ctx, bt); err != nil {
			return err
		}
		out = bt
		return nil
	})
	return out, err
}

func (r *bankTransactionRepository) RemoveAllocation(ctx context.Context, id string, ref domain.VoucherRef) (*domain.BankTransaction, error) {
	var out *domain.BankTransaction
	err := r.store.inTx(ctx, func(tx *PostgresStore) error {
		repo := &bankTransactionRepository{store: tx}
		bt, err := repo.get(ctx, id, true)
		if err != nil {
			return err
		}
		if !bt.RemoveAllocation(ref) {
			out = bt
			return nil
		}

		del := `
			DELETE FROM bank_transaction_allocations
			WHERE bank_transaction_id = $1 AND voucher_kind = $2 AND voucher_id = $3
		`
		if _, err := tx.q.ExecContext(ctx, del, id, ref.Kind, ref.ID); err != nil {
			tx.logger.WithError(err).WithFields(logrus.Fields{
				"bank_transaction_id": id,
				"voucher":             ref.String(),
			}).Error("Failed to delete allocation")
			return fmt.Errorf("failed to delete allocation: %w", err)
		}

		if err := repo.writeTotals(ctx, bt); err != nil {
			return err
		}
		out = bt
		return nil
	})
	return out, err
}

// writeTotals persists derived fields guarded by the version read under lock
func (r *bankTransactionRepository) writeTotals(ctx context.Context, bt *domain.BankTransaction) error {
	query := `
		UPDATE bank_transactions
		SET status = $1, allocated_amount = $2, unallocated_amount = $3,
			version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5
	`

	result, err := r.store.q.ExecContext(ctx, query,
		bt.Status,
		bt.AllocatedAmount,
		bt.UnallocatedAmount,
		bt.ID,
		bt.Version,
	)
	if err != nil {
		r.store.logger.WithError(err).WithField("bank_transaction_id", bt.ID).Error("Failed to update bank transaction")
		return fmt.Errorf("failed to update bank transaction: %w", mapConflict(err, bankTransactionEntity, bt.ID))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ConcurrencyConflict{Entity: bankTransactionEntity, ID: bt.ID}
	}
	bt.Version++
	return nil
}
