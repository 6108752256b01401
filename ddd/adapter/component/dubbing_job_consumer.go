package component

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	appsvc "dubbing-service/ddd/application/app"
	"dubbing-service/ddd/application/cqe"
	"dubbing-service/pkg/config"
	"dubbing-service/pkg/errno"
	pkgkafka "dubbing-service/pkg/kafka"
	"dubbing-service/pkg/logger"
	"dubbing-service/pkg/manager"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type DubbingJobConsumerPlugin struct{}

func (p *DubbingJobConsumerPlugin) Name() string { return "dubbingJobConsumer" }

func (p *DubbingJobConsumerPlugin) MustCreateComponent(deps *manager.Dependencies) manager.Component {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.GetGlobalConfig()
	}
	if !cfg.Kafka.Enabled {
		logger.Info("Kafka job consumer disabled")
		return nil
	}
	var app appsvc.DubbingApp
	if v, ok := deps.DubbingApp.(appsvc.DubbingApp); ok {
		app = v
	}
	if app == nil {
		app = appsvc.DefaultDubbingApp()
	}
	reader := pkgkafka.DefaultClient().Reader(cfg.Kafka.Topics.DubbingJobs, cfg.Kafka.GroupID)
	return NewDubbingJobConsumer(app, reader, cfg.Kafka)
}

// DubbingJobConsumer turns messages on the jobs topic into SubmitJob calls.
type DubbingJobConsumer struct {
	app    appsvc.DubbingApp
	reader MessageReader
	cfg    config.KafkaConfig
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewDubbingJobConsumer(app appsvc.DubbingApp, reader MessageReader, cfg config.KafkaConfig) *DubbingJobConsumer {
	return &DubbingJobConsumer{app: app, reader: reader, cfg: cfg, done: make(chan struct{})}
}

// jobMessage 任务提交消息
type jobMessage struct {
	cqe.SubmitJobReq
	RequestID string `json:"request_id"`
}

func (c *DubbingJobConsumer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.loop(ctx)
	return nil
}

func (c *DubbingJobConsumer) loop(ctx context.Context) {
	defer close(c.done)
	defer c.reader.Close()
	logger.Infof("Kafka consumer started topic=%s group=%s", c.cfg.Topics.DubbingJobs, c.cfg.GroupID)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("Kafka read error error=%s", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if c.handle(ctx, msg) {
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				logger.Warnf("Kafka commit failed partition=%d offset=%d error=%v", msg.Partition, msg.Offset, err)
			}
		}
	}
}

// handle submits one message and reports whether its offset should be committed.
// Retryable failures leave the offset uncommitted unless commit_on_process_error is set.
func (c *DubbingJobConsumer) handle(ctx context.Context, msg kafka.Message) bool {
	var m jobMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		logger.Warnf("Kafka message unmarshal error offset=%d error=%s", msg.Offset, err.Error())
		return c.cfg.CommitOnDecodeError
	}

	out, err := c.app.SubmitJob(logger.ContextWithRequestID(ctx, m.RequestID), &m.SubmitJobReq)
	if err != nil {
		fields := map[string]interface{}{
			"media_key":  m.MediaKey,
			"request_id": m.RequestID,
			"offset":     msg.Offset,
			"error":      err.Error(),
		}
		if retryable(err) {
			logger.Warn("submit from kafka failed, will be redelivered", fields)
			return c.cfg.CommitOnProcessError
		}
		logger.Warn("submit from kafka rejected", fields)
		return true
	}
	logger.Info("job submitted from kafka", map[string]interface{}{
		"job_id":     out.JobID,
		"request_id": m.RequestID,
		"offset":     msg.Offset,
	})
	return true
}

func retryable(err error) bool {
	return errors.Is(err, errno.ErrQueueFull) ||
		errors.Is(err, errno.ErrStorageUnavailable) ||
		errors.Is(err, errno.ErrDatabase) ||
		errors.Is(err, errno.ErrInternalServer)
}

func (c *DubbingJobConsumer) Stop() error {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
	})
	return nil
}

func (c *DubbingJobConsumer) GetName() string { return "dubbingJobConsumer" }
