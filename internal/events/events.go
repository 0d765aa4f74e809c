// Package events publishes metering audit events to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatmeter/chatmeter/internal/metrics"
)

const (
	// StreamKey is the Redis stream for metering events.
	StreamKey = "stream:metering_events"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Type names a metering event.
type Type string

// Metering event types.
const (
	TypeDebit          Type = "debit"
	TypeCommit         Type = "commit"
	TypeRefund         Type = "refund"
	TypeRejected       Type = "rejected"
	TypeRollbackFailed Type = "rollback_failed"
	TypeAdjust         Type = "adjust"
	TypePersistUnknown Type = "persist_unknown"
)

// Event is one balance-affecting step of a chat transaction.
type Event struct {
	Type      Type   `json:"type"`
	TxID      string `json:"tx"`
	AccountID string `json:"acct"`
	Amount    int64  `json:"amt"`
	Balance   int64  `json:"bal"`
	Detail    string `json:"detail,omitempty"`
	At        int64  `json:"t"` // Unix milliseconds
}

// Sink receives metering events. Emit never blocks the caller for long and
// never fails the operation that produced the event.
type Sink interface {
	Emit(event Event)
}

// Noop discards events.
type Noop struct{}

// Emit is a no-op.
func (Noop) Emit(Event) {}

// Publisher writes events to a Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
	timeout time.Duration
}

var _ Sink = (*Publisher)(nil)

// NewPublisher creates a new metering event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
		timeout: PublishTimeout,
	}
}

// Publish adds an event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	if event.At == 0 {
		event.At = time.Now().UnixMilli()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"type":    string(event.Type),
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// Emit publishes with a short detached deadline. Failures are logged and
// counted, never returned. Events an operator reconciles from
// (rollback_failed, persist_unknown, adjust) are published inline so they
// are not lost to process exit; everything else is fire-and-forget.
func (p *Publisher) Emit(event Event) {
	if event.At == 0 {
		event.At = time.Now().UnixMilli()
	}
	switch event.Type {
	case TypeRollbackFailed, TypePersistUnknown, TypeAdjust:
		p.emit(event)
		return
	}
	go p.emit(event)
}

func (p *Publisher) emit(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	streamID, err := p.Publish(ctx, event)
	if err != nil {
		p.logger.Warn("failed to publish metering event",
			"type", event.Type,
			"tx", event.TxID,
			"error", err,
		)
		p.metrics.IncEventPublished("dropped")
		return
	}

	p.logger.Debug("metering event published",
		"type", event.Type,
		"tx", event.TxID,
		"stream_id", streamID,
	)
	p.metrics.IncEventPublished("success")
}

// Decode parses the payload field of a stream entry.
func Decode(values map[string]interface{}) (Event, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing payload field")
	}
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, nil
}

// Recent reads up to count of the newest events, newest first.
func (p *Publisher) Recent(ctx context.Context, count int64) ([]Event, error) {
	msgs, err := p.redis.XRevRangeN(ctx, StreamKey, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange: %w", err)
	}

	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		e, err := Decode(m.Values)
		if err != nil {
			p.logger.Warn("skipping malformed metering event", "id", m.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
