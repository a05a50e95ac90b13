// Package events publishes JSON messages to Kafka topics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

// Message is a single record bound for a topic.
type Message struct {
	Topic   string
	Key     string
	Value   any
	Headers map[string]string
}

// Publisher writes messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// System is a Publisher with lifecycle coordination.
type System interface {
	Publisher
	// Start registers a shutdown hook that flushes and closes the writer.
	Start(lc *lifecycle.Coordinator) error
}

type producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// New creates a Kafka-backed event system. The writer carries no fixed
// topic so each message names its own destination.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("at least one broker is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeoutDuration(),
		WriteTimeout:           cfg.WriteTimeoutDuration(),
		RequiredAcks:           kafka.RequireOne,
		Compression:            compression(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	return &producer{
		writer: writer,
		logger: logger.With("system", "events"),
	}, nil
}

func (p *producer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	records := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		record, err := encode(msg)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	if err := p.writer.WriteMessages(ctx, records...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(records), err)
	}

	return nil
}

func (p *producer) Start(lc *lifecycle.Coordinator) error {
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		p.logger.Info("closing event writer")
		if err := p.writer.Close(); err != nil {
			p.logger.Error("event writer close failed", "error", err)
		}
	})
	return nil
}

func encode(msg Message) (kafka.Message, error) {
	if msg.Topic == "" {
		return kafka.Message{}, fmt.Errorf("message topic required")
	}

	value, err := json.Marshal(msg.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s message: %w", msg.Topic, err)
	}

	record := kafka.Message{
		Topic: msg.Topic,
		Value: value,
	}
	if msg.Key != "" {
		record.Key = []byte(msg.Key)
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return record, nil
}

func compression(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

type logPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a Publisher that writes each message to the log.
// It serves deployments without a broker.
func NewLogPublisher(logger *slog.Logger) Publisher {
	return &logPublisher{logger: logger.With("system", "events")}
}

func (p *logPublisher) Publish(ctx context.Context, msgs ...Message) error {
	for _, msg := range msgs {
		if _, err := encode(msg); err != nil {
			return err
		}
		p.logger.InfoContext(ctx, "event published", "topic", msg.Topic, "key", msg.Key)
	}
	return nil
}
