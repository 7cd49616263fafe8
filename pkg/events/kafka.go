package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig selects the brokers and topic trade/price events are produced to.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher produces events as JSON messages keyed by security id, so every event
// of one security lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.SugaredLogger
}

// NewKafkaPublisher creates an asynchronous producer. Writes never block the caller;
// delivery failures are logged.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.SugaredLogger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warnw("kafka_publish_failed", "messages", len(messages), "err", err)
			}
		},
	}
	logger.Infow("kafka_publisher_created", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &KafkaPublisher{writer: w, logger: logger}
}

func (k *KafkaPublisher) PublishTrade(ev TradeEvent) { k.send(ev.Security, ev) }
func (k *KafkaPublisher) PublishPrice(ev PriceEvent) { k.send(ev.Security, ev) }

func (k *KafkaPublisher) send(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		k.logger.Errorw("kafka_marshal_failed", "err", err)
		return
	}
	// Async writer: returns once the message is queued.
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{Key: []byte(key), Value: data}); err != nil {
		k.logger.Warnw("kafka_enqueue_failed", "key", key, "err", err)
	}
}

// Close flushes pending messages and closes the writer.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
