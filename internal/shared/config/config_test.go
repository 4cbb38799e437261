package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("OBJECT_STORE", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("CACHE_PREFIX", "")

	cfg := Load()
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local store, got %q", cfg.ObjectStoreType)
	}
	if cfg.CacheTTL != 4*time.Second {
		t.Fatalf("expected 4s cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.S3Bucket != "popkat" {
		t.Fatalf("expected default bucket popkat, got %q", cfg.S3Bucket)
	}
	if cfg.CachePrefix != "meta:" {
		t.Fatalf("expected cache prefix meta:, got %q", cfg.CachePrefix)
	}
}

func TestLoadCacheTTL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{name: "seconds", raw: "10", want: 10 * time.Second},
		{name: "duration", raw: "1500ms", want: 1500 * time.Millisecond},
		{name: "invalid", raw: "soon", want: 4 * time.Second},
		{name: "negative", raw: "-2s", want: 4 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CACHE_TTL", tt.raw)
			if got := Load().CacheTTL; got != tt.want {
				t.Fatalf("CACHE_TTL=%q: got %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeStoreType(t *testing.T) {
	tests := map[string]string{
		"s3":    "s3",
		" S3 ":  "s3",
		"MinIO": "minio",
		"disk":  "local",
		"":      "local",
	}
	for raw, want := range tests {
		if got := normalizeStoreType(raw); got != want {
			t.Fatalf("normalizeStoreType(%q) = %q, want %q", raw, got, want)
		}
	}
}
