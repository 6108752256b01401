package cancel

import (
	"context"
	"testing"
)

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	if r.IsCancelled(ctx, "a") {
		t.Fatal("fresh registry reports cancelled")
	}
	_ = r.RequestCancel(ctx, "a")
	if !r.IsCancelled(ctx, "a") || r.IsCancelled(ctx, "b") {
		t.Fatal("flag not isolated per job")
	}
	_ = r.Clear(ctx, "a")
	_ = r.Clear(ctx, "missing")
	if r.IsCancelled(ctx, "a") {
		t.Fatal("flag survived Clear")
	}
}

func TestFlagKey(t *testing.T) {
	if got := flagKey("job-1"); got != "dubbing:cancel:job-1" {
		t.Fatalf("flagKey = %q", got)
	}
}
