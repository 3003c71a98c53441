// Package events connects the coordinator to Kafka: confirmed and rejected
// operations fan out on one topic, and pool-creation announcements from the
// indexer arrive on another.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"greenchain/internal/coordinator"
)

const (
	// TopicOperations carries coordinator operation outcomes.
	TopicOperations = "greenchain.operations"
	// TopicPools carries pool-creation announcements.
	TopicPools = "greenchain.pools"
)

// Publisher emits operation events with fail-open semantics: the ledger is
// the source of truth, so a Kafka outage degrades the event feed but never
// fails the operation that produced the event.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets a logger for delivery failures.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher connects a producer to the given brokers.
func NewPublisher(brokers []string, opts ...PublisherOption) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(TopicOperations),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	p := &Publisher{client: client, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Publish produces the event asynchronously, keyed by account so one
// account's history stays ordered. A nil Publisher is a no-op.
func (p *Publisher) Publish(ctx context.Context, event coordinator.Event) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal operation event", "type", event.Type, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: TopicOperations,
		Key:   []byte(event.Account),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("operation event delivery failed",
				"type", event.Type, "tx", event.Tx, "error", err)
		}
	})
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}
