package redisclient

import (
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("cancel", "job-1"); got != "dubbing:cancel:job-1" {
		t.Fatalf("Key = %q", got)
	}
}

func TestPickDuration(t *testing.T) {
	if pickDuration(0, time.Second) != time.Second || pickDuration(-1, time.Second) != time.Second {
		t.Fatal("non-positive durations should fall back")
	}
	if pickDuration(2*time.Second, time.Second) != 2*time.Second {
		t.Fatal("explicit duration should win")
	}
}
