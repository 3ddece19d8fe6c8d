package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eniz1806/VaultOSS/internal/config"
)

const defaultKafkaBatchTimeout = 100 * time.Millisecond

var jsonHeader = kafka.Header{Key: "content-type", Value: []byte("application/json")}

// KafkaBackend writes event documents to a Kafka topic. In async mode
// Publish only reports local failures and broker errors are logged
// from the completion callback.
type KafkaBackend struct {
	writer *kafka.Writer
}

func NewKafkaBackend(cfg config.KafkaConfig) *KafkaBackend {
	topic := cfg.Topic
	if topic == "" {
		topic = "vaultoss-events"
	}
	batchTimeout := defaultKafkaBatchTimeout
	if cfg.BatchTimeoutMS > 0 {
		batchTimeout = time.Duration(cfg.BatchTimeoutMS) * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: batchTimeout,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        !cfg.Sync,
	}
	if w.Async {
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Error("kafka delivery failed", "topic", topic, "messages", len(messages), "error", err)
			}
		}
	}
	return &KafkaBackend{writer: w}
}

func (k *KafkaBackend) Name() string {
	return "kafka"
}

func (k *KafkaBackend) Publish(ctx context.Context, payload []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{
		Value:   payload,
		Time:    time.Now().UTC(),
		Headers: []kafka.Header{jsonHeader},
	})
}

func (k *KafkaBackend) Close() error {
	return k.writer.Close()
}
