// Package notify delivers job events to the configured sink.
package notify

import (
	"context"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/logger"
)

// LogNotifier writes events to the service log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

var _ gateway.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(_ context.Context, event gateway.JobEvent) {
	fields := map[string]interface{}{
		"job_id":   event.JobID,
		"event":    event.Type,
		"status":   event.Status,
		"progress": event.Progress,
	}
	if event.Language != "" {
		fields["language"] = event.Language
	}
	if event.Message != "" {
		fields["message"] = event.Message
	}
	logger.Info("Job event", fields)
}
