// Package events publishes sync-audit events. Publishing is fire and
// forget: the write that triggered the event has already committed.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"guardian-service/internal/client"
	"guardian-service/internal/model"
	"guardian-service/internal/util"
)

const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
)

type AuditPublisher struct {
	producer *client.KafkaProducer
	topic    string
}

// NewAuditPublisher wraps a producer. A nil producer disables publishing,
// matching how the service runs when Kafka is unavailable.
func NewAuditPublisher(producer *client.KafkaProducer, topic string) *AuditPublisher {
	return &AuditPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish emits one audit event, keyed by user so per-user ordering holds
// within a partition.
func (p *AuditPublisher) Publish(ctx context.Context, event model.SyncAuditEvent) {
	if p.producer == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		util.Warn("Failed to encode audit event", zap.Error(err))
		return
	}

	if err := p.producer.ProduceMessage(ctx, p.topic, []byte(event.UserID), value, map[string]string{
		"entity":    event.Entity,
		"operation": event.Operation,
	}); err != nil {
		util.Warn("Failed to publish audit event",
			zap.String("user_id", event.UserID),
			zap.String("entity", event.Entity),
			zap.String("operation", event.Operation),
			zap.Error(err))
	}
}
