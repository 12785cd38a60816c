// Package kafka implements a Kafka publisher for archived book records.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON payloads to a single topic.
type Publisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// New creates a publisher for brokers and topic. The topic must already
// exist.
func New(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	return NewWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}, topic), nil
}

// NewWithWriter builds a publisher around a custom writer (tests).
func NewWithWriter(writer messageWriter, topic string) *Publisher {
	return &Publisher{writer: writer, topic: topic, now: func() time.Time { return time.Now().UTC() }}
}

// Publish marshals payload and writes it synchronously. Messages sharing a
// key land on the same partition, so a run's books stay in crawl order.
// Kafka assigns offsets broker-side; the returned id is topic/key.
func (p *Publisher) Publish(ctx context.Context, key string, payload any) (string, error) {
	if p.writer == nil {
		return "", errors.New("kafka publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := kafka.Message{Key: []byte(key), Value: data, Time: p.now()}
	carrier := &headerCarrier{msg: &msg}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write kafka message: %w", err)
	}
	return p.topic + "/" + key, nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// headerCarrier implements propagation.TextMapCarrier over message headers.
type headerCarrier struct {
	msg *kafka.Message
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
