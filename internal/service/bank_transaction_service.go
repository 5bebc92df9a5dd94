package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"remittance-engine/internal/domain"
)

type BankTransactionService interface {
	GetBankTransaction(ctx context.Context, id string) (*domain.BankTransaction, error)
}

type bankTransactionService struct {
	store  domain.Store
	logger logrus.FieldLogger
}

func NewBankTransactionService(store domain.Store, logger logrus.FieldLogger) BankTransactionService {
	return &bankTransactionService{
		store:  store,
		logger: logger,
	}
}

func (s *bankTransactionService) GetBankTransaction(ctx context.Context, id string) (*domain.BankTransaction, error) {
	if id == "" {
		return nil, domain.ErrEmptyID
	}
	bt, err := s.store.BankTransactions().Get(ctx, id)
	if err != nil {
		if !domain.IsNotFound(err) {
			s.logger.WithError(err).WithField("bank_transaction_id", id).Error("Failed to load bank transaction")
		}
		return nil, err
	}
	return bt, nil
}
