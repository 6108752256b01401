package gateway

import (
	"context"
	"time"
)

// 事件类型
const (
	EventJobStarted        = "job.started"
	EventJobProgress       = "job.progress"
	EventJobCompleted      = "job.completed"
	EventJobFailed         = "job.failed"
	EventJobCancelled      = "job.cancelled"
	EventLanguageCompleted = "language.completed"
	EventLanguageFailed    = "language.failed"
)

// JobEvent 任务事件
type JobEvent struct {
	JobID     string    `json:"job_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Language  string    `json:"language,omitempty"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is fire-and-forget: delivery failures are logged by the implementation.
type Notifier interface {
	Notify(ctx context.Context, event JobEvent)
}

// CancelRegistry records cancellation requests so the orchestrator can observe them
// at stage boundaries.
type CancelRegistry interface {
	RequestCancel(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) bool
	Clear(ctx context.Context, jobID string) error
}
