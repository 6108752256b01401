package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryJobQueueFIFOAndFull(t *testing.T) {
	q := NewMemoryJobQueue(2)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "a"); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := q.Enqueue(ctx, "b"); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if err := q.Enqueue(ctx, "c"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue c err = %v, want ErrQueueFull", err)
	}
	if err := q.Enqueue(ctx, ""); err == nil {
		t.Fatal("expected error for empty id")
	}

	first, _ := q.Dequeue(ctx)
	second, _ := q.TryDequeue(ctx)
	if first != "a" || second != "b" {
		t.Fatalf("order = %q,%q", first, second)
	}
	if id, err := q.TryDequeue(ctx); id != "" || err != nil {
		t.Fatalf("empty try dequeue = %q, %v", id, err)
	}

	m := q.GetMetrics()
	if m.EnqueueCount != 2 || m.DequeueCount != 2 || m.RejectedCount != 1 || m.MaxSize != 2 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestMemoryJobQueueCloseWakesDequeue(t *testing.T) {
	q := NewMemoryJobQueue(1)
	errc := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("dequeue err = %v, want ErrQueueClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after Close")
	}

	if err := q.Enqueue(context.Background(), "x"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() || !q.IsEmpty() {
		t.Fatal("queue should report closed and empty")
	}
}

func TestMemoryJobQueueDequeueHonoursContext(t *testing.T) {
	q := NewMemoryJobQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
