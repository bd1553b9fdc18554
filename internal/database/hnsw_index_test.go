package database

import (
	"path/filepath"
	"testing"
)

func profile(id string, complete bool, vec []float32) FacialProfile {
	return FacialProfile{
		IdentityID: id,
		IsComplete: complete,
		Embeddings: Embeddings{"insightface": vec},
	}
}

func TestHNSWIndexSearch(t *testing.T) {
	idx := NewHNSWIndex("insightface")
	err := idx.BuildFromProfiles([]FacialProfile{
		profile("alice", true, []float32{1, 0, 0}),
		profile("bob", true, []float32{0, 1, 0}),
		profile("carol", true, []float32{0, 0, 1}),
		profile("dave", false, []float32{1, 0.1, 0}),
	})
	if err != nil {
		t.Fatalf("BuildFromProfiles() error: %v", err)
	}

	if idx.Count() != 3 {
		t.Errorf("Count() = %d, want 3 (incomplete profiles are skipped)", idx.Count())
	}

	ids, dists, err := idx.Search([]float32{0.9, 0.1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("Search() = %v, want [alice]", ids)
	}
	if dists[0] < 0 || dists[0] > 0.1 {
		t.Errorf("distance = %f, want small", dists[0])
	}
}

func TestHNSWIndexDelete(t *testing.T) {
	idx := NewHNSWIndex("insightface")
	idx.Add("alice", []float32{1, 0})
	idx.Add("bob", []float32{0, 1})
	idx.Delete("alice")

	ids, _, err := idx.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	for _, id := range ids {
		if id == "alice" {
			t.Error("deleted identity returned by Search")
		}
	}
	if idx.Count() != 1 {
		t.Errorf("Count() = %d, want 1", idx.Count())
	}
}

func TestHNSWIndexSkipsMismatchedDims(t *testing.T) {
	idx := NewHNSWIndex("insightface")
	idx.Add("alice", []float32{1, 0, 0})
	idx.Add("bob", []float32{1, 0})
	idx.Add("carol", nil)

	if idx.Count() != 1 {
		t.Errorf("Count() = %d, want 1", idx.Count())
	}
	if _, _, err := idx.Search([]float32{1, 0}, 1); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestHNSWIndexEmpty(t *testing.T) {
	idx := NewHNSWIndex("insightface")
	if !idx.IsEmpty() {
		t.Error("new index should be empty")
	}
	if _, _, err := idx.Search([]float32{1}, 1); err == nil {
		t.Error("expected error searching an uninitialized index")
	}
}

func TestHNSWIndexSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.hnsw")

	idx := NewHNSWIndex("insightface")
	idx.Add("alice", []float32{1, 0, 0})
	idx.Add("bob", []float32{0, 1, 0})
	if err := idx.SaveWithMetadata(path); err != nil {
		t.Fatalf("SaveWithMetadata() error: %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata() error: %v", err)
	}
	if meta.Backend != "insightface" || meta.ProfileCount != 2 || meta.Dim != 3 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	loaded := NewHNSWIndex("insightface")
	if err := loaded.Load(path, []string{"alice", "bob"}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	ids, _, err := loaded.Search([]float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "bob" {
		t.Errorf("Search() after load = %v, want [bob]", ids)
	}

	other := NewHNSWIndex("deepface")
	if err := other.Load(path, nil); err == nil {
		t.Error("expected stale error when loading another backend's index")
	}
}

func TestHNSWIndexLoadMissingFile(t *testing.T) {
	idx := NewHNSWIndex("insightface")
	if err := idx.Load(filepath.Join(t.TempDir(), "missing"), nil); err != nil {
		t.Errorf("Load() of missing file = %v, want nil", err)
	}
	if !idx.IsEmpty() {
		t.Error("index should stay empty")
	}
}
