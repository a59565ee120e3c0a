package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
	log    *zap.Logger
}

// NewKafkaProducer creates a Kafka producer that writes security events to the
// given topic. Returns (nil, nil) when brokers or topic are unset so callers
// can treat the stream as optional. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string, log *zap.Logger) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, topic: topic, log: log}, nil
}

// Emit serializes the event as JSON and writes it to the Kafka topic, keyed by
// account so a consumer sees one account's events in order. Uses the request
// context with a short timeout so slow Kafka does not block callers
// indefinitely.
func (p *KafkaProducer) Emit(ctx context.Context, event *SecurityEvent) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var key []byte
	if event.AccountID != "" {
		key = []byte(event.AccountID)
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, kafka.Message{Key: key, Value: payload}); err != nil {
		p.log.Warn("security event emit failed", zap.String("kind", event.Kind), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
