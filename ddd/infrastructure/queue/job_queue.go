package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrQueueFull 队列已满
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed 队列已关闭
	ErrQueueClosed = errors.New("job queue is closed")
)

// JobQueue 作业队列接口，元素为作业ID
type JobQueue interface {
	// Enqueue 入队作业（非阻塞，满时返回 ErrQueueFull）
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue 出队作业（阻塞直到有作业、队列关闭或 ctx 结束）
	Dequeue(ctx context.Context) (string, error)

	// TryDequeue 尝试出队作业（非阻塞），队列为空时返回 ""
	TryDequeue(ctx context.Context) (string, error)

	Size() int
	IsEmpty() bool
	Close() error
	IsClosed() bool
}

// QueueMetrics 队列指标
type QueueMetrics struct {
	EnqueueCount  uint64
	DequeueCount  uint64
	RejectedCount uint64
	MaxSize       int
	CurrentSize   int
}

// MemoryJobQueue 基于内存的作业队列实现.
// The buffer channel is never closed; Close signals through done so that a
// blocked Dequeue and a concurrent Enqueue cannot race on a closed channel.
type MemoryJobQueue struct {
	queue    chan string
	done     chan struct{}
	closeMu  sync.Mutex
	closed   atomic.Bool
	enqueued atomic.Uint64
	dequeued atomic.Uint64
	rejected atomic.Uint64
}

// NewMemoryJobQueue 创建内存作业队列
func NewMemoryJobQueue(capacity int) *MemoryJobQueue {
	if capacity <= 0 {
		capacity = 100 // 默认容量
	}
	return &MemoryJobQueue{
		queue: make(chan string, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue 入队作业
func (q *MemoryJobQueue) Enqueue(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id cannot be empty")
	}
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.queue <- jobID:
		q.enqueued.Add(1)
		return nil
	default:
		q.rejected.Add(1)
		return ErrQueueFull
	}
}

// Dequeue 出队作业（阻塞）
func (q *MemoryJobQueue) Dequeue(ctx context.Context) (string, error) {
	if q.closed.Load() {
		return "", ErrQueueClosed
	}
	select {
	case id := <-q.queue:
		q.dequeued.Add(1)
		return id, nil
	case <-q.done:
		return "", ErrQueueClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TryDequeue 尝试出队作业（非阻塞）
func (q *MemoryJobQueue) TryDequeue(ctx context.Context) (string, error) {
	if q.closed.Load() {
		return "", ErrQueueClosed
	}
	select {
	case id := <-q.queue:
		q.dequeued.Add(1)
		return id, nil
	default:
		return "", nil // 队列为空
	}
}

// Size 获取队列大小
func (q *MemoryJobQueue) Size() int {
	if q.closed.Load() {
		return 0
	}
	return len(q.queue)
}

// IsEmpty 检查队列是否为空
func (q *MemoryJobQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Close 关闭队列，唤醒所有阻塞的 Dequeue
func (q *MemoryJobQueue) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed.Load() {
		return nil
	}
	q.closed.Store(true)
	close(q.done)
	return nil
}

// IsClosed 检查队列是否已关闭
func (q *MemoryJobQueue) IsClosed() bool {
	return q.closed.Load()
}

// GetMetrics 获取队列指标
func (q *MemoryJobQueue) GetMetrics() QueueMetrics {
	return QueueMetrics{
		EnqueueCount:  q.enqueued.Load(),
		DequeueCount:  q.dequeued.Load(),
		RejectedCount: q.rejected.Load(),
		MaxSize:       cap(q.queue),
		CurrentSize:   q.Size(),
	}
}
