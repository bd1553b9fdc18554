// Package enrollment tracks the nine-angle capture state of each identity and
// decides when a profile is complete enough to be matched against.
package enrollment

import (
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// State is the enrollment stage of one identity.
type State string

const (
	StateEmpty    State = "empty"
	StatePartial  State = "partial"
	StateComplete State = "complete"
)

// StateOf derives the state of a profile. A nil profile is empty.
func StateOf(p *database.FacialProfile) State {
	if p == nil {
		return StateEmpty
	}
	switch n := len(p.CapturedAngles()); {
	case n == 0:
		return StateEmpty
	case n < len(database.Angles):
		return StatePartial
	default:
		return StateComplete
	}
}

// Apply records a quality-validated capture on the profile. A capture for an
// already captured angle replaces the old one. The center angle overwrites
// every backend embedding it carries; other angles only fill backends that
// have no embedding yet. The profile becomes complete, with its enrollment
// time set, together with the capture that brings it to nine angles.
func Apply(p *database.FacialProfile, capture *database.PoseCapture, embeddings database.Embeddings, now time.Time) {
	if p.Captures == nil {
		p.Captures = make(map[database.Angle]*database.PoseCapture)
	}
	if p.Embeddings == nil {
		p.Embeddings = make(database.Embeddings)
	}

	p.Captures[capture.Angle] = capture

	for _, backend := range embeddings.Backends() {
		if capture.Angle == database.AngleCenter || !p.Embeddings.Has(backend) {
			p.Embeddings[backend] = append([]float32(nil), embeddings[backend]...)
		}
	}

	angles := p.CapturedAngles()
	var quality, confidence float64
	for _, a := range angles {
		quality += p.Captures[a].QualityScore
		confidence += p.Captures[a].DetectionConfidence
	}
	p.QualityScore = quality / float64(len(angles))
	p.ConfidenceScore = confidence / float64(len(angles))

	if !p.IsComplete && StateOf(p) == StateComplete {
		p.IsComplete = true
		t := now
		p.EnrolledAt = &t
	}
}

// Status summarizes the enrollment progress of one identity.
type Status struct {
	IdentityID           string           `json:"identity_id"`
	State                State            `json:"state"`
	CapturedAngles       []database.Angle `json:"captured_angles"`
	MissingAngles        []database.Angle `json:"missing_angles"`
	CompletionPercentage float64          `json:"completion_percentage"`
	IsComplete           bool             `json:"is_complete"`
	QualityScore         float64          `json:"quality_score"`
	ConfidenceScore      float64          `json:"confidence_score"`
	Backends             []string         `json:"backends"`
	EnrolledAt           *time.Time       `json:"enrolled_at,omitempty"`
}

// StatusOf builds the status of a profile; nil means nothing captured yet.
func StatusOf(identityID string, p *database.FacialProfile) *Status {
	if p == nil {
		p = &database.FacialProfile{IdentityID: identityID}
	}
	return &Status{
		IdentityID:           identityID,
		State:                StateOf(p),
		CapturedAngles:       p.CapturedAngles(),
		MissingAngles:        p.MissingAngles(),
		CompletionPercentage: p.CompletionPercentage(),
		IsComplete:           p.IsComplete,
		QualityScore:         p.QualityScore,
		ConfidenceScore:      p.ConfidenceScore,
		Backends:             p.Embeddings.Backends(),
		EnrolledAt:           p.EnrolledAt,
	}
}
