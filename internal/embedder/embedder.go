// Package embedder runs the configured embedding backends. Each backend
// contributes one vector or nothing.
package embedder

import (
	"context"
	"log"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

// Embedder is a single embedding backend. Embed returns a nil vector when the
// backend finds no face.
type Embedder interface {
	Name() string
	Init(ctx context.Context) error
	Embed(ctx context.Context, data []byte) ([]float32, error)
}

// Factory creates an embedder for a configured backend.
type Factory func(cfg config.BackendConfig) (Embedder, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// Register makes a backend kind available to NewRegistry.
func Register(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

func lookup(kind string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[kind]
	return f, ok
}

// Result holds the vectors of the backends that produced one.
type Result struct {
	Success    bool                `json:"success"`
	Embeddings database.Embeddings `json:"embeddings"`
}

// Registry holds the initialized embedders.
type Registry struct {
	embedders   []Embedder
	unavailable []string
}

// NewRegistry builds and initializes an embedder per configured backend.
func NewRegistry(ctx context.Context, backends []config.BackendConfig) *Registry {
	var embedders []Embedder
	var failed []string
	for _, b := range backends {
		f, ok := lookup(b.Kind)
		if !ok {
			log.Printf("embedder %s: unknown backend kind %q, backend unavailable", b.Name, b.Kind)
			failed = append(failed, b.Name)
			continue
		}
		e, err := f(b)
		if err != nil {
			log.Printf("embedder %s: %v, backend unavailable", b.Name, err)
			failed = append(failed, b.Name)
			continue
		}
		embedders = append(embedders, e)
	}
	r := NewRegistryFrom(ctx, embedders...)
	r.unavailable = append(failed, r.unavailable...)
	return r
}

// NewRegistryFrom initializes the given embedders.
func NewRegistryFrom(ctx context.Context, embedders ...Embedder) *Registry {
	r := &Registry{}
	for _, e := range embedders {
		initCtx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
		err := e.Init(initCtx)
		cancel()
		if err != nil {
			log.Printf("embedder %s: init failed: %v, backend unavailable", e.Name(), err)
			r.unavailable = append(r.unavailable, e.Name())
			continue
		}
		r.embedders = append(r.embedders, e)
	}
	return r
}

// Available returns the names of usable backends in configuration order.
func (r *Registry) Available() []string {
	names := make([]string, len(r.embedders))
	for i, e := range r.embedders {
		names[i] = e.Name()
	}
	return names
}

// Unavailable returns the names of backends that failed to initialize.
func (r *Registry) Unavailable() []string {
	return append([]string(nil), r.unavailable...)
}

// Embed runs every available backend concurrently. Success is true when at
// least one backend produced a vector.
func (r *Registry) Embed(ctx context.Context, data []byte) (*Result, error) {
	if err := imaging.Check(data); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(r.embedders))
	var wg sync.WaitGroup
	for i, e := range r.embedders {
		wg.Add(1)
		go func(i int, e Embedder) {
			defer wg.Done()
			vec, err := e.Embed(ctx, data)
			if err != nil {
				log.Printf("embedder %s: %v", e.Name(), err)
				return
			}
			vectors[i] = vec
		}(i, e)
	}
	wg.Wait()

	result := &Result{Embeddings: make(database.Embeddings)}
	for i, e := range r.embedders {
		if len(vectors[i]) == 0 {
			continue
		}
		result.Embeddings[e.Name()] = vectors[i]
	}
	result.Success = len(result.Embeddings) > 0
	return result, nil
}
