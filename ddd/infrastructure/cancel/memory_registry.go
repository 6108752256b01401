// Package cancel stores job cancellation requests.
package cancel

import (
	"context"
	"sync"

	"dubbing-service/ddd/domain/gateway"
)

// MemoryRegistry keeps cancel flags in process memory; it suits single-instance runs.
type MemoryRegistry struct {
	mu    sync.RWMutex
	flags map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{flags: make(map[string]struct{})}
}

var _ gateway.CancelRegistry = (*MemoryRegistry)(nil)

func (r *MemoryRegistry) RequestCancel(_ context.Context, jobID string) error {
	r.mu.Lock()
	r.flags[jobID] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) IsCancelled(_ context.Context, jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.flags[jobID]
	return ok
}

func (r *MemoryRegistry) Clear(_ context.Context, jobID string) error {
	r.mu.Lock()
	delete(r.flags, jobID)
	r.mu.Unlock()
	return nil
}
