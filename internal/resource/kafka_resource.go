package resource

import (
	"dubbing-service/pkg/config"
	"dubbing-service/pkg/kafka"
	"dubbing-service/pkg/logger"
	"dubbing-service/pkg/manager"
)

// KafkaResource opens the shared kafka client when either the job consumer or the
// kafka notifier needs it.
type KafkaResource struct {
	opened bool
}

type KafkaResourcePlugin struct{}

func (p *KafkaResourcePlugin) Name() string { return "kafka" }

func (p *KafkaResourcePlugin) MustCreateResource() manager.Resource { return &KafkaResource{} }

func (r *KafkaResource) MustOpen() {
	cfg := config.GetGlobalConfig()
	if !cfg.Kafka.Enabled && cfg.Notify.Driver != "kafka" {
		logger.Info("Kafka disabled")
		return
	}
	kafka.DefaultClient().MustOpen()
	r.opened = true
}

func (r *KafkaResource) Close() {
	if r.opened {
		kafka.DefaultClient().Close()
	}
}
