// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockProfileStore is an in-memory implementation of database.ProfileWriter
type MockProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*database.FacialProfile
	saves    int

	// Error injection
	GetError    error
	ListError   error
	CountError  error
	SaveError   error
	DeleteError error
}

// NewMockProfileStore creates a new mock profile store
func NewMockProfileStore() *MockProfileStore {
	return &MockProfileStore{
		profiles: make(map[string]*database.FacialProfile),
	}
}

// AddProfile adds a profile to the mock store
func (m *MockProfileStore) AddProfile(p database.FacialProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.IdentityID] = cloneProfile(&p)
}

// SaveCount returns how many times SaveProfile succeeded
func (m *MockProfileStore) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// GetProfile returns a copy of the stored profile, nil if not found
func (m *MockProfileStore) GetProfile(ctx context.Context, identityID string) (*database.FacialProfile, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[identityID]
	if !ok {
		return nil, nil
	}
	return cloneProfile(p), nil
}

// ListCompleteProfiles returns complete profiles ordered by creation time, then identity
func (m *MockProfileStore) ListCompleteProfiles(ctx context.Context) ([]database.FacialProfile, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.FacialProfile
	for _, p := range m.profiles {
		if p.IsComplete {
			out = append(out, *cloneProfile(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].IdentityID < out[j].IdentityID
	})
	return out, nil
}

// CountProfiles returns the number of profiles and complete profiles
func (m *MockProfileStore) CountProfiles(ctx context.Context) (int, int, error) {
	if m.CountError != nil {
		return 0, 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	complete := 0
	for _, p := range m.profiles {
		if p.IsComplete {
			complete++
		}
	}
	return len(m.profiles), complete, nil
}

// SaveProfile stores a copy of the profile
func (m *MockProfileStore) SaveProfile(ctx context.Context, profile *database.FacialProfile) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	profile.UpdatedAt = time.Now()
	m.profiles[profile.IdentityID] = cloneProfile(profile)
	m.saves++
	return nil
}

// DeleteProfile removes a profile
func (m *MockProfileStore) DeleteProfile(ctx context.Context, identityID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, identityID)
	return nil
}

func cloneProfile(p *database.FacialProfile) *database.FacialProfile {
	c := *p
	c.Embeddings = p.Embeddings.Clone()
	if p.Captures != nil {
		c.Captures = make(map[database.Angle]*database.PoseCapture, len(p.Captures))
		for a, capture := range p.Captures {
			cc := *capture
			c.Captures[a] = &cc
		}
	}
	if p.EnrolledAt != nil {
		t := *p.EnrolledAt
		c.EnrolledAt = &t
	}
	return &c
}

// MockAttemptLog is an in-memory implementation of database.AttemptWriter
type MockAttemptLog struct {
	mu       sync.RWMutex
	attempts []database.RecognitionAttempt

	// Error injection
	SaveError error
	ListError error
}

// NewMockAttemptLog creates a new mock attempt log
func NewMockAttemptLog() *MockAttemptLog {
	return &MockAttemptLog{}
}

// SaveAttempt appends an attempt
func (m *MockAttemptLog) SaveAttempt(ctx context.Context, attempt *database.RecognitionAttempt) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *attempt)
	return nil
}

// ListAttempts returns the most recent attempts, newest first
func (m *MockAttemptLog) ListAttempts(ctx context.Context, limit int) ([]database.RecognitionAttempt, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.RecognitionAttempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		out = append(out, m.attempts[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// All returns every stored attempt in insertion order
func (m *MockAttemptLog) All() []database.RecognitionAttempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.RecognitionAttempt(nil), m.attempts...)
}

var (
	_ database.ProfileWriter = (*MockProfileStore)(nil)
	_ database.AttemptWriter = (*MockAttemptLog)(nil)
)
