package database

import (
	"sort"
	"time"
)

// Angle is one of the nine head poses required for a complete enrollment.
type Angle string

const (
	AngleCenter    Angle = "center"
	AngleUp        Angle = "up"
	AngleDown      Angle = "down"
	AngleLeft      Angle = "left"
	AngleRight     Angle = "right"
	AngleUpLeft    Angle = "up_left"
	AngleUpRight   Angle = "up_right"
	AngleDownLeft  Angle = "down_left"
	AngleDownRight Angle = "down_right"
)

// Angles lists the required poses in canonical order.
var Angles = []Angle{
	AngleCenter, AngleUp, AngleDown, AngleLeft, AngleRight,
	AngleUpLeft, AngleUpRight, AngleDownLeft, AngleDownRight,
}

// Valid reports whether a is one of the nine poses.
func (a Angle) Valid() bool {
	for _, v := range Angles {
		if a == v {
			return true
		}
	}
	return false
}

// ParseAngle parses a pose name; dashes are accepted in place of underscores.
func ParseAngle(s string) (Angle, bool) {
	b := []byte(s)
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
		} else if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	a := Angle(b)
	return a, a.Valid()
}

// Embeddings maps a backend name to the vector that backend produced.
type Embeddings map[string][]float32

// Has reports whether the backend has a non-empty vector.
func (e Embeddings) Has(backend string) bool {
	return len(e[backend]) > 0
}

// Backends returns the names of backends with a vector, sorted.
func (e Embeddings) Backends() []string {
	names := make([]string, 0, len(e))
	for name, v := range e {
		if len(v) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (e Embeddings) Clone() Embeddings {
	if e == nil {
		return nil
	}
	out := make(Embeddings, len(e))
	for name, v := range e {
		out[name] = append([]float32(nil), v...)
	}
	return out
}

// PoseCapture is the accepted capture for one angle of a profile.
type PoseCapture struct {
	ID                  string
	Angle               Angle
	ImageRef            string // where the collaborator keeps the source image
	Brightness          float64
	Sharpness           float64
	Contrast            float64
	QualityScore        float64
	DetectionConfidence float64
	FaceDetected        bool
	CapturedAt          time.Time
}

// FacialProfile is the enrollment state of one identity.
type FacialProfile struct {
	ID              string
	IdentityID      string
	Embeddings      Embeddings // best embedding per backend
	Captures        map[Angle]*PoseCapture
	IsComplete      bool
	QualityScore    float64 // mean capture quality
	ConfidenceScore float64 // mean capture detection confidence
	EnrolledAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CapturedAngles returns the captured angles in canonical order.
func (p *FacialProfile) CapturedAngles() []Angle {
	var out []Angle
	for _, a := range Angles {
		if _, ok := p.Captures[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// MissingAngles returns the angles still to capture in canonical order.
func (p *FacialProfile) MissingAngles() []Angle {
	var out []Angle
	for _, a := range Angles {
		if _, ok := p.Captures[a]; !ok {
			out = append(out, a)
		}
	}
	return out
}

// CompletionPercentage is captured/9*100.
func (p *FacialProfile) CompletionPercentage() float64 {
	return float64(len(p.CapturedAngles())) / float64(len(Angles)) * 100
}

// AttemptStatus is the outcome of a verification or identification call.
type AttemptStatus string

const (
	StatusSuccess       AttemptStatus = "success"
	StatusFailed        AttemptStatus = "failed"
	StatusNoFace        AttemptStatus = "no_face"
	StatusLowConfidence AttemptStatus = "low_confidence"
	StatusMultipleFaces AttemptStatus = "multiple_faces"
)

// AttemptMode tells verification (claimed identity) from identification.
type AttemptMode string

const (
	ModeVerify   AttemptMode = "verify"
	ModeIdentify AttemptMode = "identify"
)

// RecognitionAttempt is an append-only audit record of one recognition call.
type RecognitionAttempt struct {
	ID              string
	Mode            AttemptMode
	Status          AttemptStatus
	Confidence      float64
	Threshold       float64
	Similarities    map[string]float64
	ClaimedIdentity string // verification target, empty for identification
	MatchedIdentity string // empty unless recognized
	Source          string // image reference supplied by the caller
	Reason          string
	CreatedAt       time.Time
}
