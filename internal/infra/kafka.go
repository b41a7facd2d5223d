package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stakehouse/platform/internal/domain"
)

// TopicPrefix namespaces every outbox topic.
const TopicPrefix = "stakehouse."

// Topic returns the topic for an aggregate type, e.g. stakehouse.account.
func Topic(agg domain.AggregateType) string {
	return TopicPrefix + string(agg)
}

// OutboxTopics lists every topic the relay writes to.
func OutboxTopics() []string {
	aggs := []domain.AggregateType{
		domain.AggregateAccount, domain.AggregateHouse, domain.AggregateRoom,
		domain.AggregatePool, domain.AggregateRequest,
	}
	topics := make([]string, len(aggs))
	for i, a := range aggs {
		topics[i] = Topic(a)
	}
	return topics
}

// KafkaProducer wraps a kafka-go writer for publishing messages.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaProducer creates a producer for the given brokers.
func NewKafkaProducer(brokers []string, logger *slog.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	logger.Info("kafka producer initialized", "brokers", brokers)
	return &KafkaProducer{writer: w, logger: logger}
}

// Close shuts down the Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// Name implements Sink.
func (p *KafkaProducer) Name() string { return "kafka" }

// Publish writes the batch in one call. Records are keyed by partition key
// so one aggregate's events stay ordered within its partition.
func (p *KafkaProducer) Publish(ctx context.Context, records []domain.OutboxRecord) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode outbox event %s: %w", r.EventID, err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: Topic(r.AggregateType),
			Key:   []byte(r.PartitionKey),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(r.EventType)},
				{Key: "event_id", Value: []byte(r.EventID.String())},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// KafkaConsumer wraps a kafka-go reader subscribed to the outbox topics.
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewKafkaConsumer creates a consumer group reader over topics.
func NewKafkaConsumer(brokers []string, groupID string, topics []string, logger *slog.Logger) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})

	return &KafkaConsumer{reader: r, logger: logger}
}

// Next blocks for the next outbox record. The offset is committed only
// after handle returns nil.
func (c *KafkaConsumer) Next(ctx context.Context, handle func(context.Context, domain.OutboxRecord) error) error {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return err
	}
	var rec domain.OutboxRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		// A poison message would block the partition forever.
		c.logger.Error("skipping undecodable message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return c.reader.CommitMessages(ctx, msg)
	}
	if err := handle(ctx, rec); err != nil {
		return fmt.Errorf("handle %s: %w", rec.EventID, err)
	}
	return c.reader.CommitMessages(ctx, msg)
}

// Close shuts down the Kafka reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
