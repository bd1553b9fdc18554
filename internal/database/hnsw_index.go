package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/compare"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	Backend      string    `json:"backend"`
	ProfileCount int       `json:"profile_count"`
	Dim          int       `json:"dim"`
	BuildTime    time.Time `json:"build_time"`
	Version      int       `json:"version"`
}

const hnswMetadataVersion = 1

// HNSWIndex is an approximate nearest neighbour index over one backend's
// profile embeddings, keyed by identity id.
type HNSWIndex struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // For persistence
	backend    string
	dim        int
	live       map[string]bool // identities currently indexed
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty index for the given backend.
func NewHNSWIndex(backend string) *HNSWIndex {
	return &HNSWIndex{
		backend: backend,
		live:    make(map[string]bool),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Backend returns the backend whose embeddings are indexed.
func (h *HNSWIndex) Backend() string {
	return h.backend
}

// BuildFromProfiles builds the index from complete profiles. Profiles without an
// embedding for the backend, or with a different dimensionality than the first
// indexed one, are skipped.
func (h *HNSWIndex) BuildFromProfiles(profiles []FacialProfile) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.savedGraph = nil
	h.dim = 0
	h.live = make(map[string]bool, len(profiles))

	for i := range profiles {
		p := &profiles[i]
		if !p.IsComplete {
			continue
		}
		h.addLocked(p.IdentityID, p.Embeddings[h.backend])
	}
	return nil
}

func (h *HNSWIndex) addLocked(identityID string, vec []float32) {
	if len(vec) == 0 || (h.dim != 0 && len(vec) != h.dim) {
		return
	}
	if h.graph == nil {
		if h.savedGraph != nil {
			h.graph = h.savedGraph.Graph
			h.savedGraph = nil
		} else {
			h.graph = newGraph()
		}
	}
	h.dim = len(vec)
	h.graph.Delete(identityID)
	h.graph.Add(hnsw.MakeNode(identityID, append([]float32(nil), vec...)))
	h.live[identityID] = true
}

// Add indexes or replaces a single profile embedding.
func (h *HNSWIndex) Add(identityID string, vec []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(identityID, vec)
}

// Delete removes an identity from search results.
func (h *HNSWIndex) Delete(identityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.live, identityID)
	if h.graph != nil {
		h.graph.Delete(identityID)
	}
	// Nodes in a loaded saved graph stay; Search filters on live.
}

// Search finds up to k identities nearest to the query.
// Returns identity ids and their cosine distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.graph
	if g == nil && h.savedGraph != nil {
		g = h.savedGraph.Graph
	}
	if g == nil {
		return nil, nil, errors.New("index not initialized")
	}
	if k <= 0 {
		return nil, nil, nil
	}
	if h.dim != 0 && len(query) != h.dim {
		return nil, nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), h.dim)
	}

	neighbors := g.Search(query, k*HNSWSearchMultiplier)

	ids := make([]string, 0, k)
	distances := make([]float64, 0, k)
	for _, n := range neighbors {
		if !h.live[n.Key] {
			continue
		}
		ids = append(ids, n.Key)
		distances = append(distances, compare.Distance(query, n.Value))
		if len(ids) == k {
			break
		}
	}
	return ids, distances, nil
}

// Count returns the number of indexed identities.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.live)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// SaveWithMetadata persists the graph to path and its metadata to path+".meta".
func (h *HNSWIndex) SaveWithMetadata(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.graph
	if g == nil && h.savedGraph != nil {
		g = h.savedGraph.Graph
	}
	if g == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := g.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata := HNSWIndexMetadata{
		Backend:      h.backend,
		ProfileCount: len(h.live),
		Dim:          h.dim,
		BuildTime:    time.Now(),
		Version:      hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load loads a persisted graph. liveIDs are the identities that may appear in
// results; stale nodes for other identities are ignored. A missing file is not
// an error and leaves the index empty.
func (h *HNSWIndex) Load(path string, liveIDs []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if metadata.Version != hnswMetadataVersion || metadata.Backend != h.backend {
		return fmt.Errorf("HNSW index %s is stale (backend %q, version %d)", path, metadata.Backend, metadata.Version)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.savedGraph = saved
	h.graph = nil
	h.dim = metadata.Dim
	h.live = make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		h.live[id] = true
	}
	return nil
}
