package grpc

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "dubbing.v1.DubbingService"

// HealthServer exposes grpc.health.v1 so orchestrators can probe the worker.
// Jobs themselves are submitted over HTTP or Kafka.
type HealthServer struct {
	addr   string
	server *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
}

func NewHealthServer(cfg config.GRPCServerConfig) *HealthServer {
	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	hs := &HealthServer{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		server: s,
		health: h,
	}
	hs.SetServing(false)
	return hs
}

// Addr returns the bound address once Start succeeded, otherwise the configured one.
func (s *HealthServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start 监听端口并在后台提供服务
func (s *HealthServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.Serve(lis)
	return nil
}

// Serve runs the server on an existing listener in the background.
func (s *HealthServer) Serve(lis net.Listener) {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	go func() {
		logger.Infof("gRPC health server started address=%s", lis.Addr().String())
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Errorf("gRPC server encountered an error error=%v", err)
		}
	}()
}

// SetServing flips both the overall and the named service status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop 标记为不可用并优雅停止
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
