package worker

import (
	"context"
	"fmt"

	"dubbing-service/ddd/infrastructure/container"
	"dubbing-service/ddd/infrastructure/queue"
	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
	"dubbing-service/pkg/manager"
	"dubbing-service/pkg/task"
)

// DubbingWorkerComponentPlugin 负责启动配音Worker
type DubbingWorkerComponentPlugin struct{}

func (p *DubbingWorkerComponentPlugin) Name() string {
	return "dubbingWorkerComponent"
}

func (p *DubbingWorkerComponentPlugin) MustCreateComponent(deps *manager.Dependencies) manager.Component {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.GetGlobalConfig()
	}
	if !cfg.Worker.Enabled {
		logger.Info("Dubbing worker disabled")
		return nil
	}

	c := container.DefaultContainer()
	jobQueue := queue.DefaultJobQueue()
	return &dubbingWorkerComponent{
		name: "dubbingWorker",
		worker: NewDubbingWorker(jobQueue, c.Pipeline, c.Repo, Options{
			ID:             cfg.Worker.InstanceID,
			Concurrency:    cfg.Worker.MaxConcurrentJobs,
			GracePeriod:    cfg.Worker.ShutdownGracePeriod,
			RecoverOnStart: true,
		}),
	}
}

type dubbingWorkerComponent struct {
	name   string
	worker *DubbingWorker
}

func (c *dubbingWorkerComponent) Start() error {
	if c.worker == nil {
		return fmt.Errorf("dubbing worker not initialized")
	}
	// 注册后台任务，让应用启动时统一管理
	task.Register(&backgroundTaskAdapter{name: c.name, startFunc: c.worker.Start, stopFunc: c.worker.Stop})
	logger.Infof("Dubbing worker component registered background task name=%s", c.name)
	return nil
}

func (c *dubbingWorkerComponent) Stop() error {
	// 背景任务由 task.Manager 控制停止，这里保持幂等
	if err := c.worker.Stop(); err != nil {
		return err
	}
	logger.Infof("Dubbing worker component stopped name=%s", c.name)
	return nil
}

func (c *dubbingWorkerComponent) GetName() string {
	return c.name
}

// backgroundTaskAdapter adapts Start/Stop functions to the BackgroundTask interface.
type backgroundTaskAdapter struct {
	name      string
	startFunc func(ctx context.Context) error
	stopFunc  func() error
}

func (b *backgroundTaskAdapter) Name() string                    { return b.name }
func (b *backgroundTaskAdapter) Start(ctx context.Context) error { return b.startFunc(ctx) }
func (b *backgroundTaskAdapter) Stop() error                     { return b.stopFunc() }
