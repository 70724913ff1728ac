package config

import (
	"testing"
	"time"
)

func TestLoadRecognitionDefaults(t *testing.T) {
	t.Setenv("RECOGNITION_MAX_FILE_SIZE", "")
	t.Setenv("RECOGNITION_CACHE_LIFETIME", "")
	t.Setenv("RECOGNITION_CALLBACK_TIMEOUT", "")
	t.Setenv("RECOGNITION_PROVIDER_TIMEOUT", "")
	t.Setenv("NATS_STORAGE_SUBJECT", "")
	t.Setenv("NATS_TASKS_SUBJECT", "")

	cfg := Load()
	if cfg.MaxFileSizeBytes != 15_000_000 {
		t.Fatalf("expected default max file size 15000000, got %d", cfg.MaxFileSizeBytes)
	}
	if cfg.CacheLifetime() != 24*time.Hour {
		t.Fatalf("expected default cache lifetime 24h, got %s", cfg.CacheLifetime())
	}
	if cfg.CallbackTimeout() != 5*time.Second {
		t.Fatalf("expected default callback timeout 5s, got %s", cfg.CallbackTimeout())
	}
	if cfg.ProviderTimeout() != 30*time.Second {
		t.Fatalf("expected default provider timeout 30s, got %s", cfg.ProviderTimeout())
	}
	if cfg.NATSStorageSubject != "recognition.blobs.stored" {
		t.Fatalf("expected default storage subject, got %q", cfg.NATSStorageSubject)
	}
	if cfg.NATSTasksSubject != "recognition.tasks.changed" {
		t.Fatalf("expected default tasks subject, got %q", cfg.NATSTasksSubject)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("RECOGNITION_MAX_FILE_SIZE", "2000000")
	t.Setenv("RECOGNITION_CACHE_LIFETIME", "3600")
	t.Setenv("API_RATE_LIMIT_RPS", "5")
	t.Setenv("API_RATE_LIMIT_BURST", "10")

	cfg := Load()
	if cfg.MaxFileSizeBytes != 2_000_000 {
		t.Fatalf("expected max file size override, got %d", cfg.MaxFileSizeBytes)
	}
	if cfg.CacheLifetime() != time.Hour {
		t.Fatalf("expected cache lifetime 1h, got %s", cfg.CacheLifetime())
	}
	if cfg.APIRateLimitRPS != 5 || cfg.APIRateLimitBurst != 10 {
		t.Fatalf("expected rate limit overrides, got rps=%d burst=%d", cfg.APIRateLimitRPS, cfg.APIRateLimitBurst)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RECOGNITION_MAX_FILE_SIZE", "not-a-number")
	t.Setenv("RECOGNITION_PROVIDER_TIMEOUT", "also-not")

	cfg := Load()
	if cfg.MaxFileSizeBytes != 15_000_000 {
		t.Fatalf("malformed value should fall back to default, got %d", cfg.MaxFileSizeBytes)
	}
	if cfg.ProviderTimeoutSeconds != 30 {
		t.Fatalf("malformed value should fall back to default, got %d", cfg.ProviderTimeoutSeconds)
	}
}
