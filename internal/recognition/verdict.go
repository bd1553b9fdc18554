package recognition

import (
	"sort"

	"github.com/kozaktomas/face-attendance/internal/compare"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/liveness"
	"github.com/kozaktomas/face-attendance/internal/quality"
)

// Reason explains a soft failure. Soft failures are results, not errors.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoFace         Reason = "no_face"
	ReasonMultipleFaces  Reason = "multiple_faces"
	ReasonLowQuality     Reason = "low_quality"
	ReasonNoEmbedding    Reason = "no_embedding"
	ReasonLiveness       Reason = "liveness"
	ReasonNoEvidence     Reason = "no_evidence"
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonNoCandidates   Reason = "no_candidates"
	ReasonNotEnrolled    Reason = "not_enrolled"
)

// EnrollmentResult is the bundle produced for one enrollment capture.
type EnrollmentResult struct {
	Success             bool                 `json:"success"`
	Reason              Reason               `json:"reason,omitempty"`
	Angle               database.Angle       `json:"angle"`
	FacesDetected       int                  `json:"faces_detected"`
	DetectionConfidence float64              `json:"detection_confidence"`
	Detections          []detector.Detection `json:"detections,omitempty"`
	Quality             quality.Report       `json:"quality"`
	Embeddings          database.Embeddings  `json:"-"`
}

// Verdict is the structured outcome of verification or identification.
type Verdict struct {
	Recognized    bool                   `json:"recognized"`
	Status        database.AttemptStatus `json:"status"`
	Reason        Reason                 `json:"reason,omitempty"`
	Confidence    float64                `json:"confidence"`
	Threshold     float64                `json:"threshold"`
	Similarities  map[string]float64     `json:"similarities"`
	FacesDetected int                    `json:"faces_detected"`
	IdentityID    string                 `json:"identity_id,omitempty"`
	Liveness      *liveness.Result       `json:"liveness,omitempty"`
}

// Attempt converts the verdict into an audit log record.
func (v *Verdict) Attempt(mode database.AttemptMode, claimedIdentity, source string) *database.RecognitionAttempt {
	sims := make(map[string]float64, len(v.Similarities))
	for k, s := range v.Similarities {
		sims[k] = s
	}
	a := &database.RecognitionAttempt{
		Mode:            mode,
		Status:          v.Status,
		Confidence:      v.Confidence,
		Threshold:       v.Threshold,
		Similarities:    sims,
		ClaimedIdentity: claimedIdentity,
		Source:          source,
		Reason:          string(v.Reason),
	}
	if v.Recognized {
		a.MatchedIdentity = v.IdentityID
	}
	return a
}

// WeightedConfidence combines per-backend similarities as
// Σ(similarity·weight) / Σ(weight) over backends with a positive weight and a
// comparable vector on both sides. It returns 0 and an empty map when no
// backend has evidence on both sides.
func WeightedConfidence(probe, enrolled database.Embeddings, weights map[string]float64) (float64, map[string]float64) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	sims := make(map[string]float64)
	var num, den float64
	for _, name := range names {
		w := weights[name]
		if w <= 0 || !compare.Comparable(probe[name], enrolled[name]) {
			continue
		}
		s := compare.Similarity(probe[name], enrolled[name])
		sims[name] = s
		num += s * w
		den += w
	}
	if den == 0 {
		return 0, sims
	}
	return num / den, sims
}
