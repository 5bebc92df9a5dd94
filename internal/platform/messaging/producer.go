package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"remittance-engine/internal/config"
)

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventProducer writes domain events to Kafka
type EventProducer struct {
	writer KafkaWriter
	topic  string
	logger logrus.FieldLogger
}

func NewEventProducer(cfg config.KafkaConfig, logger logrus.FieldLogger) *EventProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &EventProducer{
		writer: writer,
		topic:  cfg.EventsTopic,
		logger: logger,
	}
}

func (p *EventProducer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if event.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "correlation-id", Value: []byte(event.CorrelationID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"topic":      p.topic,
			"event_type": event.Type,
			"key":        event.Key,
		}).Error("Failed to publish event")
		return fmt.Errorf("failed to publish event to %s: %w", p.topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	}).Debug("Event published")
	return nil
}

func (p *EventProducer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}

// NoopProducer drops every event. Used when Kafka is disabled.
type NoopProducer struct{}

func (NoopProducer) Publish(context.Context, Event) error { return nil }

func (NoopProducer) Close() error { return nil }
