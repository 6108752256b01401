package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"dubbing-service/pkg/logger"
)

// ServiceDiscovery lists live instances of a service.
type ServiceDiscovery struct {
	client *clientv3.Client
}

// NewServiceDiscovery initialises a discovery client.
func NewServiceDiscovery(endpoints []string) (*ServiceDiscovery, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return &ServiceDiscovery{client: client}, nil
}

// Instances fetches the registered instances of serviceName, oldest first.
func (sd *ServiceDiscovery) Instances(ctx context.Context, serviceName string) ([]Instance, error) {
	resp, err := sd.client.Get(ctx, keyPrefix+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get service instances: %w", err)
	}
	values := make([][]byte, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values = append(values, kv.Value)
	}
	return decodeInstances(values), nil
}

func decodeInstances(values [][]byte) []Instance {
	out := make([]Instance, 0, len(values))
	for _, v := range values {
		var inst Instance
		if err := json.Unmarshal(v, &inst); err != nil {
			logger.Warnf("skip malformed service instance value=%q error=%v", string(v), err)
			continue
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Close 关闭客户端
func (sd *ServiceDiscovery) Close() error {
	return sd.client.Close()
}
