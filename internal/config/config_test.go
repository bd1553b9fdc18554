package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultWorkers(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "")

	cfg := Load()

	if cfg.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Workers)
	}
}

func TestLoad_InvalidWorkers(t *testing.T) {
	for _, v := range []string{"invalid", "-3", "0"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("WORKER_POOL_SIZE", v)

			cfg := Load()

			// Should fall back to default
			if cfg.Workers != 4 {
				t.Errorf("expected default workers 4 for %q, got %d", v, cfg.Workers)
			}
		})
	}
}

func TestLoad_DatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/faces")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "10")
	t.Setenv("DATABASE_MAX_IDLE_CONNS", "")
	t.Setenv("HNSW_INDEX_PATH", "/tmp/profiles.hnsw")

	cfg := Load()

	if cfg.Database.URL != "postgres://u:p@localhost/faces" {
		t.Errorf("unexpected database URL '%s'", cfg.Database.URL)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected MaxOpenConns 10, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected default MaxIdleConns 5, got %d", cfg.Database.MaxIdleConns)
	}
	if cfg.Database.HNSWIndexPath != "/tmp/profiles.hnsw" {
		t.Errorf("unexpected HNSW path '%s'", cfg.Database.HNSWIndexPath)
	}
}

func TestLoad_DefaultBackend(t *testing.T) {
	t.Setenv("FACE_BACKENDS", "")
	t.Setenv("FACE_HTTP_TIMEOUT", "")

	cfg := Load()

	if len(cfg.Backends) != 1 {
		t.Fatalf("expected 1 default backend, got %d", len(cfg.Backends))
	}
	b := cfg.Backends[0]
	if b.Name != "insightface" || b.URL != "http://localhost:8000" || b.Kind != "faceapi" {
		t.Errorf("unexpected default backend %+v", b)
	}
	if b.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", b.Timeout)
	}
}

func TestLoad_CustomTimeout(t *testing.T) {
	t.Setenv("FACE_BACKENDS", "")
	t.Setenv("FACE_HTTP_TIMEOUT", "2s")

	cfg := Load()

	if cfg.Backends[0].Timeout != 2*time.Second {
		t.Errorf("expected timeout 2s, got %v", cfg.Backends[0].Timeout)
	}
}

func TestParseBackends(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []BackendConfig
	}{
		{
			name:  "two named backends",
			input: "insightface=http://a:8000, DeepFace=http://b:8001",
			want: []BackendConfig{
				{Name: "insightface", Kind: "faceapi", URL: "http://a:8000", Timeout: time.Second},
				{Name: "deepface", Kind: "faceapi", URL: "http://b:8001", Timeout: time.Second},
			},
		},
		{
			name:  "bare url",
			input: "http://gpu:9000",
			want: []BackendConfig{
				{Name: "insightface", Kind: "faceapi", URL: "http://gpu:9000", Timeout: time.Second},
			},
		},
		{
			name:  "duplicates and blanks skipped",
			input: "a=http://x,,a=http://y,b=",
			want: []BackendConfig{
				{Name: "a", Kind: "faceapi", URL: "http://x", Timeout: time.Second},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseBackends(tt.input, time.Second)
			if len(got) != len(tt.want) {
				t.Fatalf("parseBackends(%q) returned %d backends, want %d: %+v", tt.input, len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("backend %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoad_PolicyFile(t *testing.T) {
	t.Setenv("RECOGNITION_POLICY_FILE", "/etc/face/policy.yaml")

	cfg := Load()

	if cfg.PolicyFile != "/etc/face/policy.yaml" {
		t.Errorf("unexpected policy file '%s'", cfg.PolicyFile)
	}
}
