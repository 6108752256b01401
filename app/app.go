package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	dubbingGrpc "dubbing-service/ddd/adapter/grpc"
	appsvc "dubbing-service/ddd/application/app"
	"dubbing-service/ddd/infrastructure/container"
	"dubbing-service/ddd/infrastructure/queue"
	"dubbing-service/internal/resource"
	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
	"dubbing-service/pkg/manager"
	"dubbing-service/pkg/middleware"
	"dubbing-service/pkg/observability"
	"dubbing-service/pkg/registry"
	"dubbing-service/pkg/task"

	_ "dubbing-service/ddd/adapter/component"
	_ "dubbing-service/ddd/adapter/http"
	_ "dubbing-service/ddd/infrastructure/worker"
)

const serviceName = "dubbing-service"

// Run boots the HTTP API, the worker pool and the optional Kafka consumer, then
// blocks until SIGINT/SIGTERM.
func Run() {
	fmt.Println("[STARTUP] Starting dubbing service...")

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("[ERROR] Failed to load config (%s): %v\n", cfgPath, err)
		os.Exit(1)
	}
	// 设置全局配置（必须在资源管理器初始化之前）
	config.SetGlobalConfig(cfg)
	fmt.Printf("[STARTUP] Config file loaded: %s\n", cfgPath)

	logService := logger.NewLogger(cfg)
	logger.SetGlobalLogger(logService)
	logger.Debug("Logger initialized", map[string]interface{}{
		"level":  cfg.Log.Level,
		"format": cfg.Log.Format,
		"output": cfg.Log.Output,
	})
	logger.Infof("Dubbing service starting config=%s", cfgPath)

	if p := observability.StartFromConfig(serviceName, cfg.Profiling); p != nil {
		defer func() { _ = p.Stop() }()
	}

	// 检查 FFmpeg/FFprobe 是否可用，直接在启动阶段失败
	for _, bin := range []string{cfg.Media.FFmpegPath, cfg.Media.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Fatal(fmt.Sprintf("Media tool not found, install it or set media.ffmpeg_path/ffprobe_path binary=%s error=%v", bin, err))
		}
	}

	logger.Infof("Initializing resource manager...")
	manager.MustInitResources()
	defer manager.CloseResources()

	deps := &manager.Dependencies{
		DB:         resource.DefaultMysqlResource().MainDB(),
		Config:     cfg,
		DubbingApp: appsvc.DefaultDubbingApp(),
	}

	logger.Infof("Initializing components...")
	manager.MustInitComponents(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := task.StartAll(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("Failed to start background tasks error=%v", err))
	}
	logger.Infof("All components started")

	var healthSrv *dubbingGrpc.HealthServer
	if cfg.GRPCServer.Enabled {
		healthSrv = dubbingGrpc.NewHealthServer(cfg.GRPCServer)
		if err := healthSrv.Start(); err != nil {
			logger.Fatal(fmt.Sprintf("Failed to start gRPC server error=%v", err))
		}
		healthSrv.SetServing(cfg.Worker.Enabled)
	}

	router := newRouter(cfg)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(fmt.Sprintf("Failed to start HTTP server error=%v", err))
		}
	}()
	logger.Infof("HTTP server started addr=%s health_url=%s api_url=%s", server.Addr,
		fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
		fmt.Sprintf("http://localhost:%d/api/v1", cfg.Server.Port))

	var reg *registry.ServiceRegistry
	if cfg.ServiceRegistry.Enabled {
		reg = register(cfg, healthSrv)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("Received shutdown signal, shutting down...")

	if healthSrv != nil {
		healthSrv.SetServing(false)
	}
	if reg != nil {
		if err := reg.Deregister(); err != nil {
			logger.Warnf("Service deregister failed error=%v", err)
		}
	}

	// 先停止接收新请求，再让 worker 在宽限期内收尾
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server forced to close error=%v", err)
	}

	task.StopAll()
	manager.Shutdown()
	// 组件全部停止后再关闭队列并刷出剩余通知
	queue.CloseDefaultJobQueue()
	container.DefaultContainer().Close()
	if healthSrv != nil {
		healthSrv.Stop()
	}

	logger.Infof("Dubbing service exited safely")
	logService.Close()
}

func newRouter(cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestContextMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"service":        serviceName,
			"worker_enabled": cfg.Worker.Enabled,
			"queued_jobs":    queue.DefaultJobQueue().Size(),
			"tasks":          task.Statuses(),
			"timestamp":      time.Now().Unix(),
		})
	})

	manager.RegisterAllRoutes(router, middleware.JWTAuthMiddleware(cfg.JWT))
	return router
}

func register(cfg *config.Config, healthSrv *dubbingGrpc.HealthServer) *registry.ServiceRegistry {
	host := cfg.ServiceRegistry.RegisterHost
	if host == "" {
		host, _ = os.Hostname()
	}
	httpAddr := net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	grpcAddr := ""
	if healthSrv != nil {
		grpcAddr = net.JoinHostPort(host, strconv.Itoa(cfg.GRPCServer.Port))
	}

	reg, err := registry.NewServiceRegistry(cfg.ServiceRegistry, httpAddr, grpcAddr)
	if err != nil {
		logger.Warnf("Service registry disabled error=%v", err)
		return nil
	}
	if err := reg.Register(); err != nil {
		logger.Warnf("Service register failed error=%v", err)
		_ = reg.Deregister()
		return nil
	}
	return reg
}

// resolveConfigPath 根据环境选择配置文件，支持CONFIG_PATH覆盖、CONFIG_ENV区分环境
func resolveConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	env := strings.ToLower(strings.TrimSpace(os.Getenv("CONFIG_ENV")))
	if env == "" {
		env = "dev"
	}

	switch env {
	case "prod", "production":
		return "configs/config_prod.yaml"
	case "dev", "development":
		return "configs/config.dev.yaml"
	default:
		return fmt.Sprintf("configs/config.%s.yaml", env)
	}
}
