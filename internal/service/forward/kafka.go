// Package forward publishes delivered signals to downstream consumers.
package forward

import (
	"context"

	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/pkg/kafka"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

// KafkaSink forwards every delivered signal to a Kafka topic, keyed by
// currency pair so per-pair ordering survives partitioning. It implements
// repository.SignalSink.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	log      *logger.Logger
}

// NewKafkaSink wires a sink onto an existing producer.
func NewKafkaSink(producer *kafka.Producer, topic string, log *logger.Logger) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		log:      log.With("forward"),
	}
}

// Deliver publishes the signal. Errors surface to the router, which logs
// and counts them without affecting delivery.
func (s *KafkaSink) Deliver(ctx context.Context, n models.SignalNotification) error {
	return s.producer.Publish(ctx, s.topic, []byte(n.Pair), n)
}

// Close flushes the producer.
func (s *KafkaSink) Close() error {
	s.log.Debug("closing kafka sink")
	return s.producer.Close()
}
