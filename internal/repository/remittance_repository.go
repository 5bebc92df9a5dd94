package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"remittance-engine/internal/domain"
)

type remittanceRepository struct {
	store *PostgresStore
}

func remittanceNotFound(id string) error {
	return domain.NotFoundError{Entity: string(domain.KindRemittance), ID: id}
}

func (r *remittanceRepository) Get(ctx context.Context, id string) (*domain.Remittance, error) {
	query := `
		SELECT id, company, created_on, destination_url, declared_total, localized_total, version
		FROM remittances
		WHERE id = $1
	`

	var rem domain.Remittance
	err := r.store.q.QueryRowContext(ctx, query, id).Scan(
		&rem.ID,
		&rem.Company,
		&rem.CreatedOn,
		&rem.DestinationURL,
		&rem.DeclaredTotal,
		&rem.LocalizedTotal,
		&rem.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remittanceNotFound(id)
	}
	if err != nil {
		r.store.logger.WithError(err).WithField("remittance_id", id).Error("Failed to get remittance")
		return nil, fmt.Errorf("failed to get remittance: %w", err)
	}

	lines, err := r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	rem.Lines = lines
	return &rem, nil
}

func (r *remittanceRepository) lines(ctx context.Context, id string) ([]domain.SettlementLine, error) {
	query := `
		SELECT invoice_id, payment_id, amount
		FROM settlement_lines
		WHERE remittance_id = $1
		ORDER BY position
	`

	rows, err := r.store.q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.SettlementLine, 0)
	for rows.Next() {
		var (
			l         domain.SettlementLine
			paymentID sql.NullString
		)
		if err := rows.Scan(&l.InvoiceID, &paymentID, &l.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan settlement line: %w", err)
		}
		l.PaymentID = paymentID.String
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Save replaces the line set and totals of a remittance in one transaction.
// The stored version must still equal rem.Version.
func (r *remittanceRepository) Save(ctx context.Context, rem *domain.Remittance) error {
	return r.store.inTx(ctx, func(tx *PostgresStore) error {
		var stored int
		err := tx.q.QueryRowContext(ctx, `SELECT version FROM remittances WHERE id = $1 FOR UPDATE`, rem.ID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return remittanceNotFound(rem.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock remittance: %w", mapConflict(err, string(domain.KindRemittance), rem.ID))
		}
		if stored != rem.Version {
			return domain.ConcurrencyConflict{Entity: string(domain.KindRemittance), ID: rem.ID}
		}

		if _, err := tx.q.ExecContext(ctx, `DELETE FROM settlement_lines WHERE remittance_id = $1`, rem.ID); err != nil {
			tx.logger.WithError(err).WithField("remittance_id", rem.ID).Error("Failed to clear settlement lines")
			return fmt.Errorf("failed to clear settlement lines: %w", err)
		}

		insert := `
			INSERT INTO settlement_lines (remittance_id, position, invoice_id, payment_id, amount)
			VALUES ($1, $2, $3, $4, $5)
		`
		for i, l := range rem.Lines {
			if _, err := tx.q.ExecContext(ctx, insert, rem.ID, i, l.InvoiceID, nullString(l.PaymentID), l.Amount); err != nil {
				tx.logger.WithError(err).WithField("remittance_id", rem.ID).Error("Failed to insert settlement line")
				return fmt.Errorf("failed to insert settlement line: %w", err)
			}
		}

		update := `
			UPDATE remittances
			SET declared_total = $1, localized_total = $2, version = version + 1, updated_at = NOW()
			WHERE id = $3
		`
		if _, err := tx.q.ExecContext(ctx, update, rem.DeclaredTotal, rem.LocalizedTotal, rem.ID); err != nil {
			tx.logger.WithError(err).WithField("remittance_id", rem.ID).Error("Failed to update remittance totals")
			return fmt.Errorf("failed to update remittance: %w", err)
		}

		rem.Version++
		return nil
	})
}
