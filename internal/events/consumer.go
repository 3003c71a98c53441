package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"greenchain/internal/amm/poolregistry"
	"greenchain/internal/ledger"
	"greenchain/pkg/domain"
)

// PoolAnnouncement is the wire form of one pool creation.
type PoolAnnouncement struct {
	CertificateToken string `json:"certificate_token"`
	Pool             string `json:"pool"`
}

// PoolConsumer folds pool-creation announcements into the pool registry.
// The registry's fold is idempotent, so at-least-once delivery is safe.
type PoolConsumer struct {
	client   *kgo.Client
	registry *poolregistry.Registry
	logger   *slog.Logger
}

// ConsumerOption configures a PoolConsumer.
type ConsumerOption func(*PoolConsumer)

// WithConsumerLogger sets a logger for decode and poll failures.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *PoolConsumer) { c.logger = logger }
}

// NewPoolConsumer joins the consumer group on the pools topic.
func NewPoolConsumer(brokers []string, group string, registry *poolregistry.Registry, opts ...ConsumerOption) (*PoolConsumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(TopicPools),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c := &PoolConsumer{client: client, registry: registry, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Run polls until ctx is cancelled. Undecodable records are logged and
// skipped; they would fail identically on every redelivery.
func (c *PoolConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				c.logger.Error("pool topic fetch failed",
					"topic", topic, "partition", partition, "error", err)
			}
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.apply(record)
		})
	}
}

func (c *PoolConsumer) apply(record *kgo.Record) {
	var announcement PoolAnnouncement
	if err := json.Unmarshal(record.Value, &announcement); err != nil {
		c.logger.Error("skipping undecodable pool announcement",
			"offset", record.Offset, "error", err)
		return
	}
	token, err := domain.ParseAddress(announcement.CertificateToken)
	if err != nil {
		c.logger.Error("skipping pool announcement with bad token address", "error", err)
		return
	}
	pool, err := domain.ParseAddress(announcement.Pool)
	if err != nil {
		c.logger.Error("skipping pool announcement with bad pool address", "error", err)
		return
	}
	c.registry.Apply(ledger.PoolCreated{CertificateToken: token, Pool: pool})
}

// Close leaves the group and releases the client.
func (c *PoolConsumer) Close() {
	if c != nil {
		c.client.Close()
	}
}
