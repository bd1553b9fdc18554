// Package detector runs the configured face detection backends and merges
// their opinions into one result.
package detector

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

// Detection is one face found by one backend.
type Detection struct {
	BBox       []float64    `json:"bbox"` // [x1, y1, x2, y2]
	Confidence float64      `json:"confidence"`
	Method     string       `json:"method"`
	Landmarks  [][2]float64 `json:"landmarks,omitempty"`
}

// Result is the unified outcome over all available backends.
type Result struct {
	FacesDetected int            `json:"faces_detected"` // max count seen across backends
	Detections    []Detection    `json:"detections"`
	Success       bool           `json:"success"`
	PerBackend    map[string]int `json:"per_backend"`
}

// BestConfidence returns the highest detection confidence, 0 without detections.
func (r *Result) BestConfidence() float64 {
	best := 0.0
	for _, d := range r.Detections {
		best = max(best, d.Confidence)
	}
	return best
}

// Detector is a single face detection backend.
type Detector interface {
	Name() string
	// Init is called once when the registry is built. An error marks the
	// backend unavailable for the process lifetime.
	Init(ctx context.Context) error
	Detect(ctx context.Context, data []byte) ([]Detection, error)
}

// Factory creates a detector for a configured backend.
type Factory func(cfg config.BackendConfig) (Detector, error)

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

// Registry holds the initialized detectors.
type Registry struct {
	detectors   []Detector
	unavailable []string
}

// NewRegistry builds and initializes a detector per configured backend.
// Backends that cannot be created or initialized are logged and skipped.
func NewRegistry(ctx context.Context, backends []config.BackendConfig) *Registry {
	var detectors []Detector
	var failed []string
	for _, b := range backends {
		f, ok := lookup(b.Kind)
		if !ok {
			log.Printf("detector %s: unknown backend kind %q, backend unavailable", b.Name, b.Kind)
			failed = append(failed, b.Name)
			continue
		}
		d, err := f(b)
		if err != nil {
			log.Printf("detector %s: %v, backend unavailable", b.Name, err)
			failed = append(failed, b.Name)
			continue
		}
		detectors = append(detectors, d)
	}
	r := NewRegistryFrom(ctx, detectors...)
	r.unavailable = append(failed, r.unavailable...)
	return r
}

// NewRegistryFrom initializes the given detectors.
func NewRegistryFrom(ctx context.Context, detectors ...Detector) *Registry {
	r := &Registry{}
	for _, d := range detectors {
		initCtx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
		err := d.Init(initCtx)
		cancel()
		if err != nil {
			log.Printf("detector %s: init failed: %v, backend unavailable", d.Name(), err)
			r.unavailable = append(r.unavailable, d.Name())
			continue
		}
		r.detectors = append(r.detectors, d)
	}
	return r
}

// Available returns the names of usable backends in configuration order.
func (r *Registry) Available() []string {
	names := make([]string, len(r.detectors))
	for i, d := range r.detectors {
		names[i] = d.Name()
	}
	return names
}

// Unavailable returns the names of backends that failed to initialize.
func (r *Registry) Unavailable() []string {
	return append([]string(nil), r.unavailable...)
}

// Detect runs every available backend concurrently. Only an undecodable image
// is an error; a failing backend contributes no detections.
func (r *Registry) Detect(ctx context.Context, data []byte) (*Result, error) {
	if err := imaging.Check(data); err != nil {
		return nil, err
	}

	found := make([][]Detection, len(r.detectors))
	ok := make([]bool, len(r.detectors))
	var wg sync.WaitGroup
	for i, d := range r.detectors {
		wg.Add(1)
		go func(i int, d Detector) {
			defer wg.Done()
			detections, err := d.Detect(ctx, data)
			if err != nil {
				log.Printf("detector %s: %v", d.Name(), err)
				return
			}
			for j := range detections {
				if detections[j].Method == "" {
					detections[j].Method = d.Name()
				}
			}
			found[i] = detections
			ok[i] = true
		}(i, d)
	}
	wg.Wait()

	result := &Result{PerBackend: make(map[string]int)}
	for i, d := range r.detectors {
		if !ok[i] {
			continue
		}
		result.PerBackend[d.Name()] = len(found[i])
		result.FacesDetected = max(result.FacesDetected, len(found[i]))
		result.Detections = append(result.Detections, found[i]...)
	}
	sort.SliceStable(result.Detections, func(a, b int) bool {
		return result.Detections[a].Confidence > result.Detections[b].Confidence
	})
	result.Success = result.FacesDetected > 0
	return result, nil
}

// String describes the registry state for CLI output.
func (r *Registry) String() string {
	return fmt.Sprintf("detectors available=%v unavailable=%v", r.Available(), r.Unavailable())
}
