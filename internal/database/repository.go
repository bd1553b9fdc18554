package database

import (
	"context"
)

// ProfileReader provides read-only access to facial profiles
type ProfileReader interface {
	// GetProfile returns the profile of an identity with its captures, nil if not found
	GetProfile(ctx context.Context, identityID string) (*FacialProfile, error)
	// ListCompleteProfiles returns every complete profile in stable enrollment order
	// (created_at, then identity id). Identification tie-breaks depend on this order.
	ListCompleteProfiles(ctx context.Context) ([]FacialProfile, error)
	// CountProfiles returns the number of profiles and how many of them are complete
	CountProfiles(ctx context.Context) (total int, complete int, err error)
}

// ProfileWriter provides write access to facial profiles
type ProfileWriter interface {
	ProfileReader

	// SaveProfile stores the profile, its captures and embeddings atomically.
	// Captures absent from the profile are removed.
	SaveProfile(ctx context.Context, profile *FacialProfile) error

	// DeleteProfile removes the profile with all captures and embeddings
	DeleteProfile(ctx context.Context, identityID string) error
}

// AttemptWriter stores and lists recognition audit records
type AttemptWriter interface {
	// SaveAttempt appends an attempt
	SaveAttempt(ctx context.Context, attempt *RecognitionAttempt) error
	// ListAttempts returns the most recent attempts, newest first
	ListAttempts(ctx context.Context, limit int) ([]RecognitionAttempt, error)
}
