package observability

import (
	"os"
	"strings"

	"github.com/grafana/pyroscope-go"

	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
)

// StartProfiling 启动 pyroscope 持续性能分析。
// PYROSCOPE_SERVER_ADDRESS 为空时不启用。
func StartProfiling(appName string) *pyroscope.Profiler {
	addr := strings.TrimSpace(os.Getenv("PYROSCOPE_SERVER_ADDRESS"))
	return StartProfilingAt(appName, addr)
}

// StartProfilingAt starts pyroscope against an explicit server address.
func StartProfilingAt(appName, addr string) *pyroscope.Profiler {
	if addr == "" {
		return nil
	}
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   addr,
		Tags:            map[string]string{"hostname": hostname()},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		logger.Warnf("pyroscope start failed address=%s error=%v", addr, err)
		return nil
	}
	logger.Infof("pyroscope profiling enabled app=%s address=%s", appName, addr)
	return p
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// StartFromConfig prefers the configured server and falls back to PYROSCOPE_SERVER_ADDRESS.
func StartFromConfig(appName string, cfg config.ProfilingConfig) *pyroscope.Profiler {
	if cfg.Enabled && strings.TrimSpace(cfg.ServerAddress) != "" {
		return StartProfilingAt(appName, strings.TrimSpace(cfg.ServerAddress))
	}
	return StartProfiling(appName)
}
