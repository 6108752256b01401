package cancel

import (
	"context"
	"time"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/logger"
	"dubbing-service/pkg/redisclient"
)

// RedisRegistry shares cancel flags across service instances. Flags expire after
// ttl so abandoned requests do not accumulate.
type RedisRegistry struct {
	client *redisclient.Client
	ttl    time.Duration
}

func NewRedisRegistry(client *redisclient.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

var _ gateway.CancelRegistry = (*RedisRegistry)(nil)

func flagKey(jobID string) string {
	return redisclient.Key("cancel", jobID)
}

func (r *RedisRegistry) RequestCancel(ctx context.Context, jobID string) error {
	return r.client.SetFlag(ctx, flagKey(jobID), r.ttl)
}

// IsCancelled treats a redis failure as "not cancelled"; the next stage boundary checks again.
func (r *RedisRegistry) IsCancelled(ctx context.Context, jobID string) bool {
	ok, err := r.client.HasFlag(ctx, flagKey(jobID))
	if err != nil {
		logger.Warnf("read cancel flag failed job_id=%s error=%v", jobID, err)
		return false
	}
	return ok
}

func (r *RedisRegistry) Clear(ctx context.Context, jobID string) error {
	return r.client.DelFlag(ctx, flagKey(jobID))
}
