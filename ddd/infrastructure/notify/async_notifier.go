package notify

import (
	"context"
	"sync"
	"time"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/logger"
)

// AsyncNotifier hands events to a background goroutine so a slow sink never
// stalls the pipeline. Events are dropped, with a warning, when the buffer is full.
type AsyncNotifier struct {
	next    gateway.Notifier
	timeout time.Duration
	events  chan gateway.JobEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncNotifier(next gateway.Notifier, buffer int, timeout time.Duration) *AsyncNotifier {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	n := &AsyncNotifier{
		next:    next,
		timeout: timeout,
		events:  make(chan gateway.JobEvent, buffer),
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

var _ gateway.Notifier = (*AsyncNotifier)(nil)

func (n *AsyncNotifier) Notify(_ context.Context, event gateway.JobEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.events <- event:
	default:
		logger.Warnf("notification buffer full, dropping event job_id=%s event=%s", event.JobID, event.Type)
	}
}

func (n *AsyncNotifier) loop() {
	defer close(n.done)
	for event := range n.events {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		n.next.Notify(ctx, event)
		cancel()
	}
}

// Close stops accepting events and waits for buffered ones to be delivered.
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.events)
	n.mu.Unlock()
	<-n.done
}
