package notify

import (
	"context"
	"encoding/json"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/logger"
)

// Publisher is satisfied by *resource.RabbitMQResource.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// RabbitMQNotifier publishes events with the event type as routing key.
type RabbitMQNotifier struct {
	publisher Publisher
}

func NewRabbitMQNotifier(publisher Publisher) *RabbitMQNotifier {
	return &RabbitMQNotifier{publisher: publisher}
}

var _ gateway.Notifier = (*RabbitMQNotifier)(nil)

func (n *RabbitMQNotifier) Notify(ctx context.Context, event gateway.JobEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("marshal job event failed job_id=%s error=%v", event.JobID, err)
		return
	}
	if err := n.publisher.Publish(ctx, event.Type, body); err != nil {
		logger.Warnf("publish job event to rabbitmq failed job_id=%s event=%s error=%v", event.JobID, event.Type, err)
	}
}
