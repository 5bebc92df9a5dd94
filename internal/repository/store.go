package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is the database/sql voucher store. A store returned by
// WithinTx is bound to one *sql.Tx and runs every repository call on it.
type PostgresStore struct {
	db     *sql.DB
	q      querier
	tx     *sql.Tx
	logger logrus.FieldLogger
}

func NewPostgresStore(db *sql.DB, logger logrus.FieldLogger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		q:      db,
		logger: logger,
	}
}

func (s *PostgresStore) Vouchers() domain.VoucherRepository {
	return &voucherRepository{store: s}
}

func (s *PostgresStore) BankTransactions() domain.BankTransactionRepository {
	return &bankTransactionRepository{store: s}
}

func (s *PostgresStore) Remittances() domain.RemittanceRepository {
	return &remittanceRepository{store: s}
}

func (s *PostgresStore) Candidates() domain.CandidateRepository {
	return &candidateRepository{store: s}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.inTx(ctx, func(tx *PostgresStore) error {
		return fn(tx)
	})
}

// inTx joins the current transaction or opens a new one
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *PostgresStore) error) error {
	if s.tx != nil {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.WithError(err).Error("Failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	bound := &PostgresStore{db: s.db, q: sqlTx, tx: sqlTx, logger: s.logger}
	if err := fn(bound); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		s.logger.WithError(err).Error("Failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", mapConflict(err, "transaction", ""))
	}
	return nil
}

// Postgres error codes reported as retryable contention
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// mapConflict turns lock contention into ConcurrencyConflict and leaves
// every other error as is
func mapConflict(err error, entity, id string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return domain.ConcurrencyConflict{Entity: entity, ID: id}
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
