package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
)

// ErrNotOpened is returned when producing before MustOpen ran.
var ErrNotOpened = errors.New("kafka client not opened")

// Client shares one dialer and one writer per topic across the process.
type Client struct {
	mu       sync.RWMutex
	brokers  []string
	clientID string
	dialer   *kafka.Dialer
	writers  sync.Map // topic -> *kafka.Writer
}

var (
	once      sync.Once
	singleton *Client
)

func DefaultClient() *Client {
	once.Do(func() {
		singleton = &Client{}
	})
	return singleton
}

// MustOpen reads brokers from the global configuration.
func (c *Client) MustOpen() {
	cfg := config.GetGlobalConfig()
	if cfg == nil {
		panic("global config not initialized before Kafka client")
	}
	c.Open(cfg.Kafka)
}

// Open configures the client from cfg; tests call it with ad-hoc brokers.
func (c *Client) Open(cfg config.KafkaConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brokers = append([]string(nil), cfg.BootstrapServers...)
	c.clientID = cfg.ClientID
	c.dialer = &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		ClientID:  c.clientID,
	}
	logger.Infof("Kafka client opened brokers=%v client_id=%s", c.brokers, c.clientID)
}

func (c *Client) Opened() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.brokers) > 0
}

func (c *Client) Close() {
	c.writers.Range(func(key, value interface{}) bool {
		if w, ok := value.(*kafka.Writer); ok {
			_ = w.Close()
		}
		c.writers.Delete(key)
		return true
	})
}

func (c *Client) Writer(topic string) *kafka.Writer {
	if v, ok := c.writers.Load(topic); ok {
		return v.(*kafka.Writer)
	}
	c.mu.RLock()
	brokers := c.brokers
	c.mu.RUnlock()
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	actual, loaded := c.writers.LoadOrStore(topic, w)
	if loaded {
		_ = w.Close()
	}
	return actual.(*kafka.Writer)
}

// Produce writes one message. Messages with the same key land on the same
// partition, so events of one job stay ordered.
func (c *Client) Produce(ctx context.Context, topic string, key, value []byte) error {
	if !c.Opened() {
		return ErrNotOpened
	}
	msg := kafka.Message{Key: key, Value: value, Time: time.Now()}
	return c.Writer(topic).WriteMessages(ctx, msg)
}

// ProduceJSON marshals v and produces it under key.
func (c *Client) ProduceJSON(ctx context.Context, topic, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Produce(ctx, topic, []byte(key), body)
}

func (c *Client) Reader(topic, groupID string) *kafka.Reader {
	c.mu.RLock()
	brokers, dialer := c.brokers, c.dialer
	c.mu.RUnlock()
	logger.Infof("Kafka reader created topic=%s group=%s brokers=%v", topic, groupID, brokers)
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		Dialer:         dialer,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0,
	})
}

// EnsureTopic creates the topic through the cluster controller if it does not exist.
func (c *Client) EnsureTopic(topic string, numPartitions, replicationFactor int) error {
	c.mu.RLock()
	brokers := c.brokers
	c.mu.RUnlock()
	if len(brokers) == 0 {
		return nil
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	cc, err := kafka.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer cc.Close()
	return cc.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
}
