// Package task runs the service's long-lived background loops (the dubbing
// worker pool, the Kafka job consumer) under one start/stop lifecycle.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dubbing-service/pkg/logger"
)

// BackgroundTask is a long-running loop started once at boot and stopped on shutdown.
type BackgroundTask interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// State 后台任务状态
type State string

const (
	StateRegistered State = "registered"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

// Status is a snapshot of one task, reported on /health.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type entry struct {
	task   BackgroundTask
	status Status
}

// Manager starts tasks in registration order and stops them in reverse, so a
// producer registered after its consumer stops first.
type Manager struct {
	mu      sync.Mutex
	entries []*entry
	cancel  context.CancelFunc
}

// NewManager 创建任务管理器
func NewManager() *Manager {
	return &Manager{}
}

var defaultManager = NewManager()

// Register adds a task; components call it from their Start before StartAll runs.
func (m *Manager) Register(t BackgroundTask) {
	if t == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &entry{task: t, status: Status{Name: t.Name(), State: StateRegistered}})
}

// StartAll starts every registered task once. If one fails, the tasks already
// started are stopped again and the error names the failing task.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for i, e := range m.entries {
		if err := e.task.Start(runCtx); err != nil {
			e.status.State = StateFailed
			e.status.Error = err.Error()
			logger.Error("background task failed to start", logger.Fields{"task": e.status.Name, "error": err.Error()})
			m.stopLocked(m.entries[:i])
			cancel()
			m.cancel = nil
			return fmt.Errorf("start %s: %w", e.status.Name, err)
		}
		e.status.State = StateRunning
		e.status.StartedAt = time.Now()
		e.status.Error = ""
		logger.Infof("Background task started name=%s", e.status.Name)
	}
	return nil
}

// StopAll stops running tasks in reverse registration order and returns their
// joined errors.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return m.stopLocked(m.entries)
}

func (m *Manager) stopLocked(entries []*entry) error {
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.status.State != StateRunning {
			continue
		}
		start := time.Now()
		if err := e.task.Stop(); err != nil {
			e.status.State = StateFailed
			e.status.Error = err.Error()
			logger.Warnf("Background task stop failed name=%s error=%v", e.status.Name, err)
			errs = append(errs, fmt.Errorf("stop %s: %w", e.status.Name, err))
			continue
		}
		e.status.State = StateStopped
		logger.Infof("Background task stopped name=%s took=%s", e.status.Name, time.Since(start).Round(time.Millisecond))
	}
	return errors.Join(errs...)
}

// Statuses returns a snapshot of every registered task.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.status)
	}
	return out
}

// Register adds a task to the process-wide manager.
func Register(t BackgroundTask) { defaultManager.Register(t) }

// StartAll starts the process-wide manager's tasks.
func StartAll(ctx context.Context) error { return defaultManager.StartAll(ctx) }

// StopAll stops the process-wide manager's tasks, logging any failure.
func StopAll() {
	if err := defaultManager.StopAll(); err != nil {
		logger.Warnf("Background tasks stopped with errors: %v", err)
	}
}

// Statuses reports the process-wide manager's tasks.
func Statuses() []Status { return defaultManager.Statuses() }
