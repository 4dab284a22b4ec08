package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"BITROT_API_ADDR", "BITROT_MAX_UPLOAD", "BITROT_DEFAULT_INTEGRITY", "POSTGRES_DSN", "RATE_LIMIT_WINDOW", "BITROT_MAX_PIXELS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.API.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %s", cfg.API.Addr)
	}
	if cfg.Decay.DefaultIntegrity != 0.9 {
		t.Fatalf("expected default integrity 0.9, got %v", cfg.Decay.DefaultIntegrity)
	}
	if cfg.Decay.MaxUploadBytes != 20*1024*1024 {
		t.Fatalf("expected 20MiB upload cap, got %d", cfg.Decay.MaxUploadBytes)
	}
	if cfg.Decay.MaxPixels != 50_000_000 || cfg.Worker.MaxPixels != 50_000_000 {
		t.Fatalf("expected 50M pixel cap, got api=%d worker=%d", cfg.Decay.MaxPixels, cfg.Worker.MaxPixels)
	}
	if cfg.Database.DSN != "" {
		t.Fatalf("expected empty DSN, got %q", cfg.Database.DSN)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("expected 1m window, got %s", cfg.RateLimit.Window)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BITROT_MAX_UPLOAD", "2MB")
	t.Setenv("BITROT_DEFAULT_INTEGRITY", "0.25")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("BITROT_MAX_PIXELS", "1000000")

	cfg := Load()
	if cfg.Decay.MaxUploadBytes != 2*1024*1024 {
		t.Fatalf("expected 2MB upload cap, got %d", cfg.Decay.MaxUploadBytes)
	}
	if cfg.Decay.DefaultIntegrity != 0.25 {
		t.Fatalf("expected integrity 0.25, got %v", cfg.Decay.DefaultIntegrity)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("expected 30s window, got %s", cfg.RateLimit.Window)
	}
	if cfg.Queue.RedisDB != 3 || cfg.Queue.RedisOptions().DB != 3 {
		t.Fatalf("expected redis db 3, got %d", cfg.Queue.RedisDB)
	}
	if cfg.Decay.MaxPixels != 1_000_000 || cfg.Worker.MaxPixels != 1_000_000 {
		t.Fatalf("expected 1M pixel cap, got api=%d worker=%d", cfg.Decay.MaxPixels, cfg.Worker.MaxPixels)
	}
	if !cfg.Storage.UseSSL {
		t.Fatal("expected MINIO_USE_SSL=true")
	}
}

func TestEnvBytesRejectsGarbage(t *testing.T) {
	t.Setenv("BITROT_MAX_UPLOAD", "lots")
	if got := envBytes("BITROT_MAX_UPLOAD", 42); got != 42 {
		t.Fatalf("expected fallback 42, got %d", got)
	}
	t.Setenv("BITROT_MAX_UPLOAD", "4096")
	if got := envBytes("BITROT_MAX_UPLOAD", 42); got != 4096 {
		t.Fatalf("expected 4096, got %d", got)
	}
}
