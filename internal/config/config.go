package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

type Config struct {
	Database   DatabaseConfig
	Backends   []BackendConfig
	PolicyFile string // RECOGNITION_POLICY_FILE, empty means the embedded default
	Workers    int
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the profile HNSW index (optional, rebuilt on startup if empty)
}

// BackendConfig describes one face analysis backend. The name is the key used in
// policy weights and stored embeddings.
type BackendConfig struct {
	Name    string
	Kind    string // registry factory name, "faceapi" for the HTTP face analysis server
	URL     string
	Timeout time.Duration
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable as a positive Go duration ("30s", "2m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// parseBackends parses FACE_BACKENDS: comma separated "name=url" pairs.
// A bare URL gets the default backend name; duplicate names keep the first entry.
func parseBackends(s string, timeout time.Duration) []BackendConfig {
	if strings.TrimSpace(s) == "" {
		s = constants.DefaultBackendName + "=" + constants.DefaultBackendURL
	}

	var backends []BackendConfig
	seen := make(map[string]bool)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, "=")
		if !ok {
			name, url = constants.DefaultBackendName, entry
		}
		name = strings.ToLower(strings.TrimSpace(name))
		url = strings.TrimSpace(url)
		if name == "" || url == "" || seen[name] {
			continue
		}
		seen[name] = true
		backends = append(backends, BackendConfig{
			Name:    name,
			Kind:    "faceapi",
			URL:     url,
			Timeout: timeout,
		})
	}
	return backends
}

func Load() *Config {
	timeout := envDuration("FACE_HTTP_TIMEOUT", constants.DefaultBackendTimeout)

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Backends:   parseBackends(os.Getenv("FACE_BACKENDS"), timeout),
		PolicyFile: os.Getenv("RECOGNITION_POLICY_FILE"),
		Workers:    envInt("WORKER_POOL_SIZE", constants.WorkerPoolSize),
	}
}
