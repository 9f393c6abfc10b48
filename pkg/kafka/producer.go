package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/utafrali/storefront/pkg/logger"
)

// Message headers set on every published event.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderSource        = "source"
	HeaderCorrelationID = "correlation_id"
	HeaderContentType   = "content-type"
)

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
	WriteTimeout time.Duration
}

// DefaultProducerConfig returns defaults suited to low-volume session events.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
		WriteTimeout: 5 * time.Second,
	}
}

// Publisher publishes events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
}

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events through a kafka-go writer.
type Producer struct {
	writer  MessageWriter
	brokers []string
	logger  *slog.Logger
}

// NewProducer creates a producer. No connection is made until the first write.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		Async:                  cfg.Async,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(w, cfg.Brokers, logger)
}

// NewProducerWithWriter creates a producer over an existing writer.
func NewProducerWithWriter(w MessageWriter, brokers []string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		writer:  w,
		brokers: brokers,
		logger:  logger,
	}
}

// Publish sends event to topic keyed by event.Key. Envelope fields are
// copied into headers so consumers can route without decoding the body.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(event.Key),
		Value: value,
		Time:  event.OccurredAt,
	}
	carrier := NewHeaderCarrier(&msg.Headers)
	carrier.Set(HeaderEventID, event.ID)
	carrier.Set(HeaderEventType, event.Type)
	carrier.Set(HeaderSource, event.Source)
	carrier.Set(HeaderContentType, "application/json")
	if event.CorrelationID != "" {
		carrier.Set(HeaderCorrelationID, event.CorrelationID)
	}
	injectTrace(ctx, &msg)

	log := logger.WithContext(ctx, p.logger).With(
		slog.String("topic", topic),
		slog.String("event_type", event.Type),
	)
	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	publishDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		publishErrorsTotal.WithLabelValues(topic).Inc()
		log.ErrorContext(ctx, "failed to publish event", slog.String("error", err.Error()))
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	publishedTotal.WithLabelValues(topic).Inc()
	log.DebugContext(ctx, "event published", slog.String("event_id", event.ID))
	return nil
}

// Ping checks that at least one broker is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers dials the given brokers and returns nil if at least one answers.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}

	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", lastErr)
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// LogPublisher is used when no brokers are configured. It logs every event
// at debug level and never fails.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	logger.WithContext(ctx, p.logger).DebugContext(ctx, "kafka disabled, event dropped",
		slog.String("topic", topic),
		slog.String("event_type", event.Type),
		slog.String("event_id", event.ID),
	)
	return nil
}
