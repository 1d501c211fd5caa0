package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/tally/pkg/metrics"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	ActivityTopic string
	BatchSize     int
	BatchTimeout  time.Duration
}

// ParseBrokers splits a comma-separated broker string
func ParseBrokers(brokers string) []string {
	list := strings.Split(brokers, ",")
	result := make([]string, 0, len(list))
	for _, broker := range list {
		if broker = strings.TrimSpace(broker); broker != "" {
			result = append(result, broker)
		}
	}
	return result
}

// ActivityPublisher fans committed activity events out to downstream consumers
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, event models.ActivityEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ActivityMessage is the payload written to the activity topic
type ActivityMessage struct {
	models.ActivityEvent
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// Producer publishes activity events to Kafka
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.ActivityTopic,
		Balancer:               &kafka.Hash{},
		BatchSize:              batchSize,
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.ActivityTopic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MessageKey keeps every event of one sheet on the same partition
func MessageKey(event models.ActivityEvent) string {
	return fmt.Sprintf("%s:%s", event.ElectionID, event.SheetID)
}

// PublishActivity publishes one activity event
func (p *Producer) PublishActivity(ctx context.Context, event models.ActivityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishActivity")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("election_id", event.ElectionID),
		attribute.String("sheet_id", event.SheetID),
		attribute.String("action", string(event.Action)),
	)

	start := time.Now()
	msg := ActivityMessage{
		ActivityEvent: event,
		TraceID:       tracing.GetTraceID(ctx),
		SpanID:        tracing.GetSpanID(ctx),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal activity event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "election_id", Value: []byte(event.ElectionID)},
		{Key: "sheet_id", Value: []byte(event.SheetID)},
		{Key: "action", Value: []byte(event.Action)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(MessageKey(event)),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish activity to Kafka topic %s", p.topic)
		return err
	}

	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published activity to Kafka: sheet=%s action=%s version=%d", event.SheetID, event.Action, event.Version)
	return nil
}

// NoopPublisher drops every event. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishActivity(context.Context, models.ActivityEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
