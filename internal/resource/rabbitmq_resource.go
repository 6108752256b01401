package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dubbing-service/pkg/assert"
	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
	"dubbing-service/pkg/manager"
)

var (
	rabbitResourceOnce      sync.Once
	singletonRabbitResource *RabbitMQResource
)

// RabbitMQResource 持有事件发布用的 AMQP 连接与通道
type RabbitMQResource struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
}

// DefaultRabbitMQResource 获取RabbitMQ资源单例
func DefaultRabbitMQResource() *RabbitMQResource {
	assert.NotCircular()
	rabbitResourceOnce.Do(func() {
		singletonRabbitResource = &RabbitMQResource{}
	})
	assert.NotNil(singletonRabbitResource)
	return singletonRabbitResource
}

// MustOpen 仅当通知驱动为 rabbitmq 时建立连接并声明事件队列
func (r *RabbitMQResource) MustOpen() {
	cfg := config.GetGlobalConfig()
	if cfg.Notify.Driver != "rabbitmq" {
		return
	}
	if cfg.RabbitMQ.URL == "" {
		panic("rabbitmq url is required when notify driver is rabbitmq")
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		panic(fmt.Sprintf("failed to connect rabbitmq: %v", err))
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		panic(fmt.Sprintf("failed to open rabbitmq channel: %v", err))
	}

	queue := cfg.RabbitMQ.EventQueue
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		panic(fmt.Sprintf("failed to declare queue %s: %v", queue, err))
	}
	if ex := cfg.RabbitMQ.Exchange; ex != "" {
		if err := ch.ExchangeDeclare(ex, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			panic(fmt.Sprintf("failed to declare exchange %s: %v", ex, err))
		}
		if err := ch.QueueBind(queue, "job.#", ex, false, nil); err != nil {
			panic(fmt.Sprintf("failed to bind queue %s: %v", queue, err))
		}
		if err := ch.QueueBind(queue, "language.#", ex, false, nil); err != nil {
			panic(fmt.Sprintf("failed to bind queue %s: %v", queue, err))
		}
	}

	r.conn, r.ch = conn, ch
	r.exchange, r.queue = cfg.RabbitMQ.Exchange, queue
	logger.Info("RabbitMQ resource initialized", map[string]interface{}{
		"exchange": r.exchange,
		"queue":    r.queue,
	})
}

// Publish sends a persistent JSON message. With an exchange configured the
// routing key is used as is; otherwise the message goes straight to the event queue.
func (r *RabbitMQResource) Publish(ctx context.Context, routingKey string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch == nil {
		return fmt.Errorf("rabbitmq not opened")
	}
	key := routingKey
	if r.exchange == "" {
		key = r.queue
	}
	return r.ch.PublishWithContext(ctx, r.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Opened reports whether a channel is available.
func (r *RabbitMQResource) Opened() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch != nil
}

func (r *RabbitMQResource) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
		r.ch = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// RabbitMQResourcePlugin RabbitMQ资源插件
type RabbitMQResourcePlugin struct{}

func (p *RabbitMQResourcePlugin) Name() string { return "rabbitmqResource" }

func (p *RabbitMQResourcePlugin) MustCreateResource() manager.Resource {
	return DefaultRabbitMQResource()
}
