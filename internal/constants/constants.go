// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Quality score weights
const (
	// QualityBrightnessWeight is the share of mean brightness in the quality score
	QualityBrightnessWeight = 0.3

	// QualitySharpnessWeight is the share of normalized Laplacian variance in the quality score
	QualitySharpnessWeight = 0.5

	// QualityContrastWeight is the share of normalized standard deviation in the quality score
	QualityContrastWeight = 0.2

	// SharpnessNormalizer divides the Laplacian variance into a roughly [0,1] range
	SharpnessNormalizer = 1000.0

	// ContrastNormalizer divides the grayscale standard deviation into a roughly [0,1] range
	ContrastNormalizer = 128.0
)

// Image processing constants
const (
	// MaxAnalysisSize is the maximum dimension (width or height) used for liveness statistics.
	// Larger images are downscaled before liveness analysis. Quality uses full resolution.
	MaxAnalysisSize = 1024
)

// Default recognition policy values, used when no policy file overrides them
const (
	// DefaultMinConfidence is the minimum weighted confidence for a positive verdict
	DefaultMinConfidence = 0.6

	// DefaultQualityThreshold is the minimum quality score accepted during enrollment
	DefaultQualityThreshold = 0.5

	// DefaultMaxRecognitionTime bounds a single enroll or recognize call
	DefaultMaxRecognitionTime = 5 * time.Second

	// WeightSumTolerance is the allowed deviation of the backend weight sum from 1.0
	WeightSumTolerance = 1e-6
)

// Face analysis backend constants
const (
	// DefaultBackendName is used when FACE_BACKENDS lists a bare URL
	DefaultBackendName = "insightface"

	// DefaultBackendURL is the face analysis server used when nothing is configured
	DefaultBackendURL = "http://localhost:8000"

	// DefaultBackendTimeout is the HTTP client timeout for a face analysis server
	DefaultBackendTimeout = 30 * time.Second

	// HealthCheckTimeout bounds the one-time availability probe of a backend
	HealthCheckTimeout = 5 * time.Second
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for batch identification
	WorkerPoolSize = 4

	// DefaultAttemptsLimit is the default number of audit log rows listed by the CLI
	DefaultAttemptsLimit = 50
)

// Liveness constants
const (
	// LivenessMinScore is the combined score a live face must exceed
	LivenessMinScore = 0.5

	// LivenessVarianceThreshold is the minimum grayscale variance of a live capture
	LivenessVarianceThreshold = 100.0

	// AntiSpoofEdgeDensity is the minimum edge density required when anti-spoofing is on
	AntiSpoofEdgeDensity = 0.02
)
