// Package audit publishes redacted orchestration events to a Kafka topic so
// an external compliance pipeline can follow what the assistant did and who
// approved it.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ansibot/ansibot/internal/redact"
)

// Event types emitted by the orchestrator.
const (
	EventTurnStarted    = "turn_started"
	EventTurnFinished   = "turn_finished"
	EventApprovalAsked  = "approval_requested"
	EventApprovalResult = "approval_resolved"
	EventJobLaunched    = "job_launched"
	EventJobFinished    = "job_finished"
)

// Event is one audit envelope. Detail passes through redaction before it is
// written, so the stream never carries credentials.
type Event struct {
	Type    string    `json:"type"`
	TraceID string    `json:"trace_id"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// writerAPI is the kafka.Writer surface the publisher uses; tests fake it.
type writerAPI interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes audit events. A nil Publisher is a no-op, so callers
// never branch on whether auditing is configured.
type Publisher struct {
	writer writerAPI
}

// NewPublisher creates a publisher for the given brokers and topic.
// Returns nil when brokers is empty (auditing disabled).
func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Publish writes one event. Failures are logged, never propagated: auditing
// must not break a turn.
func (p *Publisher) Publish(ctx context.Context, eventType, traceID, detail string) {
	if p == nil {
		return
	}
	ev := Event{
		Type:    eventType,
		TraceID: traceID,
		Detail:  redact.Redact(detail),
		At:      time.Now(),
	}
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("audit event marshal failed", "type", eventType, "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(traceID),
		Value: value,
		Time:  ev.At,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("audit publish failed", "type", eventType, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
