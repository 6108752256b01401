package component

import "dubbing-service/pkg/manager"

func init() {
	// Kafka 任务消费者，kafka.enabled=false 时不创建
	manager.RegisterComponentPlugin(&DubbingJobConsumerPlugin{})
}
