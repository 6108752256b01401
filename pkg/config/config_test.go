package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
worker:
  max_concurrent_jobs: 4
pipeline:
  chunk_seconds: 20
  supported_pairs: ["en:hi", "hi:en"]
minio:
  access_key: ak
  secret_key: sk
voices:
  - language: hi-IN
    voice: hi-IN-Wavenet-A
  - language: hi-IN
    gender: male
    voice: hi-IN-Wavenet-B
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.MaxConcurrentJobs != 4 {
		t.Fatalf("max jobs = %d, want 4", cfg.Worker.MaxConcurrentJobs)
	}
	if cfg.Worker.QueueCapacity != 40 {
		t.Fatalf("queue capacity = %d, want 40", cfg.Worker.QueueCapacity)
	}
	if cfg.Pipeline.ChunkSeconds != 20 {
		t.Fatalf("chunk seconds = %v, want 20", cfg.Pipeline.ChunkSeconds)
	}
	if cfg.Pipeline.RetryAttempts != 3 || cfg.Pipeline.RetryBackoff != time.Second {
		t.Fatalf("retry defaults = %d/%s", cfg.Pipeline.RetryAttempts, cfg.Pipeline.RetryBackoff)
	}
	if cfg.Minio.AccessKeyID != "ak" || cfg.Minio.SecretAccessKey != "sk" {
		t.Fatalf("minio keys not normalized: %+v", cfg.Minio)
	}
	if cfg.Kafka.Topics.DubbingJobs != "dubbing.jobs" {
		t.Fatalf("jobs topic = %q", cfg.Kafka.Topics.DubbingJobs)
	}

	voices := cfg.VoiceTable()
	if voices["hi-in"] != "hi-IN-Wavenet-A" || voices["hi-in/male"] != "hi-IN-Wavenet-B" {
		t.Fatalf("voice table = %v", voices)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Pipeline.TempoMin != 0.5 || cfg.Pipeline.TempoMax != 2.0 {
		t.Fatalf("tempo bounds = %v..%v", cfg.Pipeline.TempoMin, cfg.Pipeline.TempoMax)
	}
	if cfg.Media.FFmpegPath != "ffmpeg" || cfg.Media.FFprobePath != "ffprobe" {
		t.Fatalf("media paths = %+v", cfg.Media)
	}
	if cfg.Storage.Driver != "minio" || cfg.Storage.LocalDir == "" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Server.Port != 8083 || cfg.GRPCServer.Port != 9095 {
		t.Fatalf("ports = %d/%d", cfg.Server.Port, cfg.GRPCServer.Port)
	}
	if cfg.Notify.Driver != "log" {
		t.Fatalf("notify driver = %q", cfg.Notify.Driver)
	}
	if cfg.Worker.InstanceID == "" {
		t.Fatal("worker instance id must default to a stable name")
	}
}
