package worker

import "dubbing-service/pkg/manager"

func init() {
	manager.RegisterComponentPlugin(&DubbingWorkerComponentPlugin{})
}
