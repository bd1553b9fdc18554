// Package recognition orchestrates detection, quality checks, embedding and
// scoring into enrollment results and verification verdicts.
package recognition

import (
	"context"
	"fmt"
	"image"
	"log"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/liveness"
	"github.com/kozaktomas/face-attendance/internal/quality"
)

// Engine runs the enrollment and recognition pipelines. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	detectors *detector.Registry
	embedders *embedder.Registry
	policy    config.RecognitionPolicy
	liveness  *liveness.Checker
	index     *database.HNSWIndex
}

// NewEngine validates the policy and creates an engine.
func NewEngine(detectors *detector.Registry, embedders *embedder.Registry, policy config.RecognitionPolicy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		detectors: detectors,
		embedders: embedders,
		policy:    policy,
	}
	if policy.EnableLiveness || policy.EnableAntiSpoofing {
		e.liveness = liveness.NewChecker(liveness.DefaultConfig(policy.EnableAntiSpoofing))
	}
	return e, nil
}

// WithIndex enables ANN candidate narrowing for Identify.
func (e *Engine) WithIndex(idx *database.HNSWIndex) *Engine {
	e.index = idx
	return e
}

// Policy returns the policy the engine was created with.
func (e *Engine) Policy() config.RecognitionPolicy {
	return e.policy
}

// EnrollFace validates one capture and produces its embeddings. Only an
// undecodable image is an error; every other rejection is a result with a Reason.
func (e *Engine) EnrollFace(ctx context.Context, data []byte, angle database.Angle) (*EnrollmentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.policy.MaxRecognitionTime)
	defer cancel()

	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}

	result := &EnrollmentResult{Angle: angle}

	det, err := e.detectors.Detect(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	result.FacesDetected = det.FacesDetected
	result.Detections = det.Detections
	result.DetectionConfidence = det.BestConfidence()
	switch {
	case det.FacesDetected == 0:
		result.Reason = ReasonNoFace
		return result, nil
	case det.FacesDetected > 1:
		result.Reason = ReasonMultipleFaces
		return result, nil
	}

	result.Quality = quality.Analyze(img)
	if result.Quality.Score < e.policy.QualityThreshold {
		result.Reason = ReasonLowQuality
		return result, nil
	}

	emb, err := e.embedders.Embed(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}
	if !emb.Success {
		result.Reason = ReasonNoEmbedding
		return result, nil
	}

	result.Embeddings = emb.Embeddings
	result.Success = true
	return result, nil
}

// probe holds the verification-side measurements of one image.
type probe struct {
	embeddings database.Embeddings
	faces      int
	liveness   *liveness.Result
}

// examine detects, checks liveness and embeds a probe image. A non-nil
// verdict means the pipeline stopped early.
func (e *Engine) examine(ctx context.Context, data []byte) (*probe, *Verdict, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, nil, err
	}

	det, err := e.detectors.Detect(ctx, data)
	if err != nil {
		return nil, nil, fmt.Errorf("detect faces: %w", err)
	}
	p := &probe{faces: det.FacesDetected}

	switch {
	case det.FacesDetected == 0:
		return p, e.reject(p, database.StatusNoFace, ReasonNoFace), nil
	case det.FacesDetected > 1:
		return p, e.reject(p, database.StatusMultipleFaces, ReasonMultipleFaces), nil
	}

	if e.liveness != nil {
		p.liveness = e.checkLiveness(img)
		if !p.liveness.Live {
			return p, e.reject(p, database.StatusFailed, ReasonLiveness), nil
		}
	}

	emb, err := e.embedders.Embed(ctx, data)
	if err != nil {
		return nil, nil, fmt.Errorf("embed face: %w", err)
	}
	if !emb.Success {
		return p, e.reject(p, database.StatusFailed, ReasonNoEmbedding), nil
	}
	p.embeddings = emb.Embeddings
	return p, nil, nil
}

func (e *Engine) checkLiveness(img image.Image) *liveness.Result {
	r := e.liveness.Check(img)
	return &r
}

func (e *Engine) reject(p *probe, status database.AttemptStatus, reason Reason) *Verdict {
	return &Verdict{
		Status:        status,
		Reason:        reason,
		Threshold:     e.policy.MinConfidence,
		Similarities:  map[string]float64{},
		FacesDetected: p.faces,
		Liveness:      p.liveness,
	}
}

// RecognizeFace verifies an image against one identity's enrolled embeddings.
func (e *Engine) RecognizeFace(ctx context.Context, data []byte, enrolled database.Embeddings) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, e.policy.MaxRecognitionTime)
	defer cancel()

	p, early, err := e.examine(ctx, data)
	if err != nil {
		return nil, err
	}
	if early != nil {
		return early, nil
	}

	v := e.Evaluate(p.embeddings, enrolled)
	v.FacesDetected = p.faces
	v.Liveness = p.liveness
	return v, nil
}

// Evaluate scores probe embeddings against enrolled ones under the policy.
// A verdict without any backend evidence is never recognized.
func (e *Engine) Evaluate(probe, enrolled database.Embeddings) *Verdict {
	confidence, sims := WeightedConfidence(probe, enrolled, e.policy.Weights)
	v := &Verdict{
		Confidence:   confidence,
		Threshold:    e.policy.MinConfidence,
		Similarities: sims,
	}
	switch {
	case len(sims) == 0:
		v.Status = database.StatusFailed
		v.Reason = ReasonNoEvidence
	case confidence >= e.policy.MinConfidence:
		v.Recognized = true
		v.Status = database.StatusSuccess
	default:
		v.Status = database.StatusLowConfidence
		v.Reason = ReasonBelowThreshold
	}
	return v
}

// Identify matches an image against every complete profile in population and
// returns the best recognized one. Ties go to the profile seen first.
func (e *Engine) Identify(ctx context.Context, data []byte, population []database.FacialProfile) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, e.policy.MaxRecognitionTime)
	defer cancel()

	p, early, err := e.examine(ctx, data)
	if err != nil {
		return nil, err
	}
	if early != nil {
		return early, nil
	}

	var best, top *Verdict
	for _, profile := range e.candidates(p.embeddings, population) {
		if !profile.IsComplete {
			continue
		}
		v := e.Evaluate(p.embeddings, profile.Embeddings)
		v.IdentityID = profile.IdentityID
		if v.Recognized && (best == nil || v.Confidence > best.Confidence) {
			best = v
		}
		if len(v.Similarities) > 0 && (top == nil || v.Confidence > top.Confidence) {
			top = v
		}
	}

	switch {
	case best != nil:
	case top != nil:
		// closest identity is reported for the audit log but not matched
		best = top
	default:
		best = e.reject(p, database.StatusFailed, ReasonNoCandidates)
	}
	best.FacesDetected = p.faces
	best.Liveness = p.liveness
	return best, nil
}

// candidates narrows the population with the ANN index when it is large.
// Profiles the index cannot hold (no vector on its backend, or a different
// dimensionality) always survive. Survivors keep their population order.
func (e *Engine) candidates(probe database.Embeddings, population []database.FacialProfile) []database.FacialProfile {
	k := e.policy.ANNCandidates
	if e.index == nil || k <= 0 || len(population) <= k {
		return population
	}

	query := probe[e.index.Backend()]
	if len(query) == 0 {
		return population
	}
	ids, _, err := e.index.Search(query, k)
	if err != nil {
		log.Printf("ANN search on %s failed, scanning all profiles: %v", e.index.Backend(), err)
		return population
	}
	if len(ids) == 0 {
		return population
	}

	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := make([]database.FacialProfile, 0, len(ids))
	for _, profile := range population {
		vec := profile.Embeddings[e.index.Backend()]
		if keep[profile.IdentityID] || len(vec) != len(query) {
			out = append(out, profile)
		}
	}
	return out
}
