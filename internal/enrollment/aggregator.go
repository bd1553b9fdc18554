package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var (
	// ErrInvalidAngle is returned for a pose outside the nine enrollment angles.
	ErrInvalidAngle = errors.New("invalid enrollment angle")
	// ErrNotEnrolled is returned when an identity has no complete profile.
	ErrNotEnrolled = errors.New("identity is not enrolled")
)

// Enroller validates a single capture. *recognition.Engine implements it.
type Enroller interface {
	EnrollFace(ctx context.Context, data []byte, angle database.Angle) (*recognition.EnrollmentResult, error)
}

// CaptureResult is the outcome of one Capture call.
type CaptureResult struct {
	Enrollment    *recognition.EnrollmentResult `json:"enrollment"`
	Status        *Status                       `json:"status"`
	Recaptured    bool                          `json:"recaptured"`
	JustCompleted bool                          `json:"just_completed"`
}

// Aggregator owns profile mutation. Captures for the same identity are
// serialized; different identities proceed in parallel.
type Aggregator struct {
	enroller Enroller
	store    database.ProfileWriter
	locks    *identityLocks
	now      func() time.Time
}

// NewAggregator creates an aggregator over the given enroller and store.
func NewAggregator(enroller Enroller, store database.ProfileWriter) *Aggregator {
	return &Aggregator{
		enroller: enroller,
		store:    store,
		locks:    newIdentityLocks(),
		now:      time.Now,
	}
}

// Capture validates an image for one angle and, when accepted, stores it on the
// identity's profile. A rejected capture leaves the profile untouched and is
// reported through Enrollment.Reason.
func (a *Aggregator) Capture(ctx context.Context, identityID string, angle database.Angle, data []byte, imageRef string) (*CaptureResult, error) {
	if !angle.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAngle, angle)
	}

	enrollment, err := a.enroller.EnrollFace(ctx, data, angle)
	if err != nil {
		return nil, err
	}

	unlock := a.locks.lock(identityID)
	defer unlock()

	profile, err := a.store.GetProfile(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", identityID, err)
	}

	result := &CaptureResult{Enrollment: enrollment}
	if !enrollment.Success {
		result.Status = StatusOf(identityID, profile)
		return result, nil
	}

	if profile == nil {
		profile = &database.FacialProfile{
			ID:         uuid.NewString(),
			IdentityID: identityID,
		}
	}
	_, result.Recaptured = profile.Captures[angle]
	wasComplete := profile.IsComplete

	now := a.now()
	Apply(profile, &database.PoseCapture{
		ID:                  uuid.NewString(),
		Angle:               angle,
		ImageRef:            imageRef,
		Brightness:          enrollment.Quality.Brightness,
		Sharpness:           enrollment.Quality.Sharpness,
		Contrast:            enrollment.Quality.Contrast,
		QualityScore:        enrollment.Quality.Score,
		DetectionConfidence: enrollment.DetectionConfidence,
		FaceDetected:        true,
		CapturedAt:          now,
	}, enrollment.Embeddings, now)

	if err := a.store.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("save profile %s: %w", identityID, err)
	}

	result.JustCompleted = profile.IsComplete && !wasComplete
	result.Status = StatusOf(identityID, profile)
	return result, nil
}

// Status returns the enrollment progress of an identity.
func (a *Aggregator) Status(ctx context.Context, identityID string) (*Status, error) {
	profile, err := a.store.GetProfile(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", identityID, err)
	}
	return StatusOf(identityID, profile), nil
}

// Reset discards every capture and embedding of an identity.
func (a *Aggregator) Reset(ctx context.Context, identityID string) error {
	unlock := a.locks.lock(identityID)
	defer unlock()

	if err := a.store.DeleteProfile(ctx, identityID); err != nil {
		return fmt.Errorf("reset profile %s: %w", identityID, err)
	}
	return nil
}

// EnrolledEmbeddings returns the embeddings of a complete profile.
func (a *Aggregator) EnrolledEmbeddings(ctx context.Context, identityID string) (database.Embeddings, error) {
	profile, err := a.store.GetProfile(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", identityID, err)
	}
	if profile == nil || !profile.IsComplete {
		return nil, fmt.Errorf("%w: %s", ErrNotEnrolled, identityID)
	}
	return profile.Embeddings, nil
}
