package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event types published after a successful commit
const (
	EventReconciliationApplied  = "reconciliation.applied"
	EventRemittanceUnreconciled = "remittance.unreconciled"
	EventSettlementSynced       = "settlement.synced"
)

// Event is the envelope written to the events topic
type Event struct {
	ID            string      `json:"event_id"`
	Type          string      `json:"type"`
	Key           string      `json:"key"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
	Payload       interface{} `json:"payload"`
}

// NewEvent stamps a fresh id and time. key decides the partition, so all
// events of one bank transaction or remittance stay ordered.
func NewEvent(eventType, key string, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
