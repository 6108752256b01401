package notify

import (
	"context"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/logger"
)

// JSONProducer is satisfied by *kafka.Client.
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, v interface{}) error
}

// KafkaNotifier publishes events keyed by job id, so one job's events stay ordered.
type KafkaNotifier struct {
	producer JSONProducer
	topic    string
}

func NewKafkaNotifier(producer JSONProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

var _ gateway.Notifier = (*KafkaNotifier)(nil)

func (n *KafkaNotifier) Notify(ctx context.Context, event gateway.JobEvent) {
	if err := n.producer.ProduceJSON(ctx, n.topic, event.JobID, event); err != nil {
		logger.Warnf("publish job event to kafka failed topic=%s job_id=%s event=%s error=%v", n.topic, event.JobID, event.Type, err)
	}
}
