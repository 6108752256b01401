package http

import "dubbing-service/pkg/manager"

func init() {
	manager.RegisterControllerPlugin(&DubbingControllerPlugin{})
}
