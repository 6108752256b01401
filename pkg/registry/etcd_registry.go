package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
)

const keyPrefix = "/services/"

// Instance is the value stored under /services/<name>/<id>.
type Instance struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HTTPAddr  string    `json:"http_addr"`
	GRPCAddr  string    `json:"grpc_addr,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

func instanceKey(name, id string) string {
	return fmt.Sprintf("%s%s/%s", keyPrefix, name, id)
}

// ServiceRegistry registers this process into etcd under a TTL lease and keeps the
// lease alive, re-registering when it is lost.
type ServiceRegistry struct {
	client   *clientv3.Client
	instance Instance
	ttl      int64
	refresh  time.Duration

	mu      sync.Mutex
	leaseID clientv3.LeaseID
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewServiceRegistry creates a registry client. An empty service_id defaults to
// <hostname>-<pid>.
func NewServiceRegistry(cfg config.ServiceRegistryConfig, httpAddr, grpcAddr string) (*ServiceRegistry, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("service_registry.endpoints is empty")
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	id := cfg.ServiceID
	if id == "" {
		host, _ := os.Hostname()
		id = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	ttl := int64(cfg.TTL.Seconds())
	if ttl < 5 {
		ttl = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ServiceRegistry{
		client: client,
		instance: Instance{
			ID:        id,
			Name:      cfg.ServiceName,
			HTTPAddr:  httpAddr,
			GRPCAddr:  grpcAddr,
			StartedAt: time.Now(),
		},
		ttl:     ttl,
		refresh: cfg.RefreshInterval,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// Register 注册服务实例并启动续约
func (r *ServiceRegistry) Register() error {
	if err := r.put(); err != nil {
		return err
	}
	go r.keepAlive()
	return nil
}

func (r *ServiceRegistry) put() error {
	lease, err := r.client.Grant(r.ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	body, err := json.Marshal(r.instance)
	if err != nil {
		return err
	}
	key := instanceKey(r.instance.Name, r.instance.ID)
	if _, err := r.client.Put(r.ctx, key, string(body), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	r.mu.Lock()
	r.leaseID = lease.ID
	r.mu.Unlock()
	logger.Infof("Service registered key=%s http=%s grpc=%s", key, r.instance.HTTPAddr, r.instance.GRPCAddr)
	return nil
}

func (r *ServiceRegistry) keepAlive() {
	defer close(r.done)
	retry := r.refresh
	if retry <= 0 {
		retry = 10 * time.Second
	}
	for {
		r.mu.Lock()
		lease := r.leaseID
		r.mu.Unlock()

		ch, err := r.client.KeepAlive(r.ctx, lease)
		if err == nil {
			for range ch {
			}
		}
		if r.ctx.Err() != nil {
			return
		}
		logger.Warnf("Service lease lost, re-registering id=%s error=%v", r.instance.ID, err)

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(retry):
		}
		if err := r.put(); err != nil {
			logger.Warnf("Service re-register failed id=%s error=%v", r.instance.ID, err)
		}
	}
}

// Deregister 注销服务并关闭客户端
func (r *ServiceRegistry) Deregister() error {
	r.cancel()
	r.mu.Lock()
	lease := r.leaseID
	r.mu.Unlock()
	if lease != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if _, err := r.client.Revoke(ctx, lease); err != nil {
			logger.Warnf("Failed to revoke lease: %v", err)
		}
		cancel()
		<-r.done
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close etcd client: %w", err)
	}
	logger.Infof("Service deregistered id=%s", r.instance.ID)
	return nil
}
