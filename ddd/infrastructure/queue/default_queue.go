package queue

import (
	"sync"

	"dubbing-service/pkg/config"
)

var (
	queueOnce    sync.Once
	defaultQueue *MemoryJobQueue
)

// DefaultJobQueue 获取默认作业队列
func DefaultJobQueue() JobQueue {
	queueOnce.Do(func() {
		capacity := 100
		if cfg := config.GetGlobalConfig(); cfg != nil && cfg.Worker.QueueCapacity > 0 {
			capacity = cfg.Worker.QueueCapacity
		}
		defaultQueue = NewMemoryJobQueue(capacity)
	})
	return defaultQueue
}

// CloseDefaultJobQueue 关闭默认作业队列
func CloseDefaultJobQueue() {
	if defaultQueue != nil {
		_ = defaultQueue.Close()
	}
}
