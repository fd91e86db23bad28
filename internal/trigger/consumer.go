package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ApprovalEvent is the message shape published by the student-management
// system when an application changes status.
type ApprovalEvent struct {
	SubjectID uuid.UUID `json:"subject_id"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

// Consumer reads approval events from kafka and feeds the approved ones into
// the trigger surface. Unparseable messages are logged and committed so they
// are not redelivered forever.
type Consumer struct {
	client   *kgo.Client
	triggers *Triggers
	logger   *slog.Logger
	topic    string
}

// NewConsumer connects a consumer group and ensures the topic exists.
func NewConsumer(ctx context.Context, brokers []string, topic, group string, triggers *Triggers, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(group),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &Consumer{client: client, triggers: triggers, logger: logger, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Run polls until ctx is cancelled. Blocking; callers run it in a goroutine.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(record)
		})
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.Error("kafka commit failed", "error", err)
		}
	}
}

func (c *Consumer) handle(record *kgo.Record) {
	var event ApprovalEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		c.logger.Warn("skipping unparseable approval event",
			"topic", record.Topic,
			"offset", record.Offset,
			"error", err,
		)
		return
	}
	if event.Status != "APPROVED" {
		return
	}
	c.logger.Info("approval event received", "subject_id", event.SubjectID)
	c.triggers.OnApprovalApproved(event.SubjectID)
}

// Close tears down the kafka client.
func (c *Consumer) Close() {
	c.client.Close()
}
