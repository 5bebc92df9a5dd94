package service

import (
	"context"
	"errors"

	"remittance-engine/internal/domain"
	"remittance-engine/internal/lock"
	"remittance-engine/internal/platform/messaging"
)

// EventPublisher sends domain events once a change is committed
type EventPublisher interface {
	Publish(ctx context.Context, event messaging.Event) error
}

func bankTransactionKey(id string) string {
	return "bank_transaction:" + id
}

func remittanceKey(id string) string {
	return "remittance:" + id
}

// lockError reports a lock wait that ran out as a retryable conflict
func lockError(err error, entity, id string) error {
	if errors.Is(err, lock.ErrTimeout) {
		return domain.ConcurrencyConflict{Entity: entity, ID: id}
	}
	return err
}
