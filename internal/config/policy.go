package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// ErrInvalidPolicy is returned when a recognition policy fails validation.
var ErrInvalidPolicy = errors.New("invalid recognition policy")

// RecognitionPolicy holds the thresholds, backend weights and feature flags read by
// every recognition call. It is loaded once at startup and passed by value.
type RecognitionPolicy struct {
	MinConfidence      float64            `yaml:"min_confidence" json:"min_confidence"`
	QualityThreshold   float64            `yaml:"quality_threshold" json:"quality_threshold"`
	Weights            map[string]float64 `yaml:"weights" json:"weights"`
	EnableLiveness     bool               `yaml:"enable_liveness" json:"enable_liveness"`
	EnableAntiSpoofing bool               `yaml:"enable_anti_spoofing" json:"enable_anti_spoofing"`
	LogAllAttempts     bool               `yaml:"log_all_attempts" json:"log_all_attempts"`
	MaxRecognitionTime time.Duration      `yaml:"max_recognition_time" json:"max_recognition_time"`
	// ANNCandidates > 0 narrows identification to that many nearest profiles first.
	ANNCandidates int `yaml:"ann_candidates" json:"ann_candidates"`
}

// DefaultPolicy returns the embedded default policy.
func DefaultPolicy() RecognitionPolicy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		// embedded file, can only fail on a broken build
		panic("failed to parse embedded policy.yaml: " + err.Error())
	}
	return p
}

// ParsePolicy decodes and validates a YAML policy. Fields missing from data keep
// their built-in defaults.
func ParsePolicy(data []byte) (RecognitionPolicy, error) {
	p := RecognitionPolicy{
		MinConfidence:      constants.DefaultMinConfidence,
		QualityThreshold:   constants.DefaultQualityThreshold,
		MaxRecognitionTime: constants.DefaultMaxRecognitionTime,
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return RecognitionPolicy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return RecognitionPolicy{}, err
	}
	return p, nil
}

// LoadPolicy reads a policy file, or returns the embedded default when path is empty.
func LoadPolicy(path string) (RecognitionPolicy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return RecognitionPolicy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// Validate checks thresholds, weights and limits.
func (p RecognitionPolicy) Validate() error {
	// zero would accept a verdict without any backend evidence
	if !(p.MinConfidence > 0 && p.MinConfidence <= 1) {
		return fmt.Errorf("%w: min_confidence %v outside (0,1]", ErrInvalidPolicy, p.MinConfidence)
	}
	if !(p.QualityThreshold >= 0 && p.QualityThreshold <= 1) {
		return fmt.Errorf("%w: quality_threshold %v outside [0,1]", ErrInvalidPolicy, p.QualityThreshold)
	}
	if len(p.Weights) == 0 {
		return fmt.Errorf("%w: no backend weights", ErrInvalidPolicy)
	}
	var sum float64
	for name, w := range p.Weights {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: weight for %s is %v", ErrInvalidPolicy, name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > constants.WeightSumTolerance {
		return fmt.Errorf("%w: weights sum to %v, want 1.0", ErrInvalidPolicy, sum)
	}
	if p.MaxRecognitionTime <= 0 {
		return fmt.Errorf("%w: max_recognition_time must be positive", ErrInvalidPolicy)
	}
	if p.ANNCandidates < 0 {
		return fmt.Errorf("%w: ann_candidates must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// PrimaryBackend returns the backend with the highest weight (ties broken by name).
func (p RecognitionPolicy) PrimaryBackend() string {
	names := make([]string, 0, len(p.Weights))
	for name := range p.Weights {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	for _, name := range names {
		if best == "" || p.Weights[name] > p.Weights[best] {
			best = name
		}
	}
	return best
}
