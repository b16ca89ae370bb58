package storage

import (
	"testing"

	"github.com/saedlagr/foodio-beta-sub000/internal/config"
)

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"abc123.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.eu-west-1.amazonaws.com", StorageTypeS3},
		{"localhost:9000", StorageTypeS3Compatible},
	}
	for _, tt := range tests {
		if got := detectStorageType(tt.endpoint); got != tt.want {
			t.Errorf("detectStorageType(%q) = %s, want %s", tt.endpoint, got, tt.want)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"https://minio.local:9000/":      "minio.local:9000",
		"http://minio.local:9000/bucket": "minio.local:9000",
		"minio.local:9000":               "minio.local:9000",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKeys(t *testing.T) {
	if got := OriginalKey("alice", "rec-1", ".jpg"); got != "originals/alice/rec-1.jpg" {
		t.Errorf("OriginalKey() = %q", got)
	}
}

func TestURLRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
		base string
	}{
		{
			name: "s3 compatible",
			cfg:  config.StorageConfig{Type: "s3compatible", Endpoint: "localhost:9000", Bucket: "food", AccessKey: "k", SecretKey: "s"},
			base: "http://localhost:9000/food",
		},
		{
			name: "cdn",
			cfg:  config.StorageConfig{Type: "r2", Endpoint: "acct.r2.cloudflarestorage.com", UseSSL: true, Bucket: "food", PublicURL: "https://img.example.com/", AccessKey: "k", SecretKey: "s"},
			base: "https://img.example.com",
		},
		{
			name: "minio",
			cfg:  config.StorageConfig{Type: "minio", Endpoint: "minio:9000", Bucket: "food", AccessKey: "k", SecretKey: "s"},
			base: "http://minio:9000/food",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStorage(&tt.cfg)
			if err != nil {
				t.Fatalf("NewStorage() error = %v", err)
			}
			key := OriginalKey("alice", "rec-1", ".png")
			url := store.GetURL(key)
			if url != tt.base+"/"+key {
				t.Errorf("GetURL() = %q, want %q", url, tt.base+"/"+key)
			}
			got, ok := store.KeyFromURL(url)
			if !ok || got != key {
				t.Errorf("KeyFromURL() = %q, %v, want %q", got, ok, key)
			}
			if _, ok := store.KeyFromURL("https://elsewhere.example.com/" + key); ok {
				t.Error("KeyFromURL() accepted a foreign URL")
			}
		})
	}
}
