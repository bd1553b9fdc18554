package database

import (
	"context"
	"fmt"
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
	// HNSWIndex returns the live index used for candidate narrowing
	HNSWIndex() *HNSWIndex
}

var (
	postgresProfileWriter func() ProfileWriter
	postgresAttemptWriter func() AttemptWriter
	postgresProfileHNSW   HNSWRebuilder
	postgresInitialized   bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(profileWriter func() ProfileWriter, attemptWriter func() AttemptWriter) {
	postgresProfileWriter = profileWriter
	postgresAttemptWriter = attemptWriter
	postgresInitialized = true
}

// RegisterProfileHNSWRebuilder registers the HNSW rebuilder for the profile repository.
func RegisterProfileHNSWRebuilder(rebuilder HNSWRebuilder) {
	postgresProfileHNSW = rebuilder
}

// GetProfileHNSWRebuilder returns the registered profile HNSW rebuilder, or nil if not registered.
func GetProfileHNSWRebuilder() HNSWRebuilder {
	return postgresProfileHNSW
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetProfileWriter returns a ProfileWriter from the PostgreSQL backend
func GetProfileWriter(ctx context.Context) (ProfileWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresProfileWriter == nil {
		return nil, fmt.Errorf("PostgreSQL profile writer not registered")
	}
	return postgresProfileWriter(), nil
}

// GetProfileReader returns a ProfileReader from the PostgreSQL backend
func GetProfileReader(ctx context.Context) (ProfileReader, error) {
	return GetProfileWriter(ctx)
}

// GetAttemptWriter returns an AttemptWriter from the PostgreSQL backend
func GetAttemptWriter(ctx context.Context) (AttemptWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresAttemptWriter == nil {
		return nil, fmt.Errorf("PostgreSQL attempt writer not registered")
	}
	return postgresAttemptWriter(), nil
}
