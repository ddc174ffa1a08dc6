// Package redpanda publishes domain events to Redpanda/Kafka.
//
// One record is produced per completed interview, keyed by interview id so
// that events of one interview stay ordered within a partition.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// recordProducer is the slice of *kgo.Client the producer needs.
type recordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer implements domain.EventPublisher on franz-go.
type Producer struct {
	client recordProducer
	topic  string
}

var _ domain.EventPublisher = (*Producer)(nil)

// NewProducer connects an idempotent producer and makes sure topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	if topic == "" {
		return nil, fmt.Errorf("op=redpanda.NewProducer: topic is required")
	}
	slog.Info("creating redpanda producer", slog.Any("brokers", brokers), slog.String("topic", topic))

	// Produce spans join the request trace and carry it in record headers.
	tracing := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.WithHooks(tracing.Hooks()...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
		// Brokers with auto-create or pre-provisioned topics still work.
		slog.Warn("failed to create topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
	}
	return &Producer{client: client, topic: topic}, nil
}

// PublishInterviewCompleted produces one record and waits for the ack.
func (p *Producer) PublishInterviewCompleted(ctx domain.Context, ev domain.InterviewCompletedEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		observability.PublishResult(p.topic, "error")
		return fmt.Errorf("op=redpanda.publish: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.InterviewID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte("interview.completed")},
			{Key: "user_id", Value: []byte(ev.UserID)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		observability.PublishResult(p.topic, "error")
		return fmt.Errorf("op=redpanda.publish: %w", err)
	}
	observability.PublishResult(p.topic, "ok")
	slog.Debug("interview completion published",
		slog.String("interview_id", ev.InterviewID),
		slog.String("event_id", ev.EventID))
	return nil
}

// Ping checks broker connectivity for readiness probes.
func (p *Producer) Ping(ctx context.Context) error {
	c, ok := p.client.(*kgo.Client)
	if !ok {
		return nil
	}
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("op=redpanda.ping: %w", err)
	}
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// NoopPublisher drops events; it is used when no brokers are configured.
type NoopPublisher struct{}

// PublishInterviewCompleted logs the event at debug level and returns nil.
func (NoopPublisher) PublishInterviewCompleted(ctx domain.Context, ev domain.InterviewCompletedEvent) error {
	slog.DebugContext(ctx, "events disabled, dropping interview completion", slog.String("interview_id", ev.InterviewID))
	return nil
}
