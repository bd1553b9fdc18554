// Package liveness provides single-frame liveness and anti-spoofing heuristics.
package liveness

import (
	"image"
	"math"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

// edgeGradientThreshold is the central-difference gradient above which a pixel counts as an edge.
const edgeGradientThreshold = 30.0

// lbpStep is the sampling stride for local binary patterns.
const lbpStep = 4

// Config controls which checks run and how strict they are.
type Config struct {
	VarianceThreshold float64
	MinScore          float64
	AntiSpoofing      bool
	MinEdgeDensity    float64
}

// DefaultConfig returns the thresholds used when a policy enables liveness.
func DefaultConfig(antiSpoofing bool) Config {
	return Config{
		VarianceThreshold: constants.LivenessVarianceThreshold,
		MinScore:          constants.LivenessMinScore,
		AntiSpoofing:      antiSpoofing,
		MinEdgeDensity:    constants.AntiSpoofEdgeDensity,
	}
}

// Result describes the outcome of a liveness check.
type Result struct {
	Live        bool            `json:"live"`
	Score       float64         `json:"score"`
	Variance    float64         `json:"variance"`
	EdgeDensity float64         `json:"edge_density"`
	Texture     float64         `json:"texture"`
	Checks      map[string]bool `json:"checks"`
	Reason      string          `json:"reason,omitempty"`
}

// Checker runs liveness heuristics on a decoded capture.
type Checker struct {
	cfg Config
}

// NewChecker creates a checker with the given configuration.
func NewChecker(cfg Config) *Checker {
	return &Checker{cfg: cfg}
}

// Check scores a capture. Variance, edge density and texture complexity are combined
// with weights 0.4/0.3/0.3; the capture is live when the score exceeds MinScore and the
// variance exceeds VarianceThreshold. With anti-spoofing on, edge density must also
// reach MinEdgeDensity.
func (c *Checker) Check(img image.Image) Result {
	gray := imaging.ToGray(imaging.Fit(img, constants.MaxAnalysisSize))

	r := Result{
		Variance:    variance(gray.Pix),
		EdgeDensity: edgeDensity(gray),
		Texture:     textureComplexity(gray),
		Checks:      make(map[string]bool),
	}
	r.Score = normalize(r.Variance, 0, 10000)*0.4 + r.EdgeDensity*0.3 + r.Texture*0.3

	r.Checks["variance"] = r.Variance > c.cfg.VarianceThreshold
	r.Checks["score"] = r.Score > c.cfg.MinScore
	r.Live = r.Checks["variance"] && r.Checks["score"]

	if c.cfg.AntiSpoofing {
		r.Checks["edges"] = r.EdgeDensity >= c.cfg.MinEdgeDensity
		r.Live = r.Live && r.Checks["edges"]
	}

	if !r.Live {
		switch {
		case !r.Checks["variance"]:
			r.Reason = "flat image (possible photo or screen)"
		case c.cfg.AntiSpoofing && !r.Checks["edges"]:
			r.Reason = "too few edges (possible print or screen replay)"
		default:
			r.Reason = "liveness score below threshold"
		}
	}
	return r
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum, sumSq float64
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	n := float64(len(values))
	mean := sum / n
	return math.Max(0, sumSq/n-mean*mean)
}

func edgeDensity(g *imaging.Gray) float64 {
	if g.Width < 3 || g.Height < 3 {
		return 0
	}
	edges, total := 0, 0
	for y := 1; y < g.Height-1; y++ {
		for x := 1; x < g.Width-1; x++ {
			gx := g.At(x+1, y) - g.At(x-1, y)
			gy := g.At(x, y+1) - g.At(x, y-1)
			if math.Sqrt(gx*gx+gy*gy) > edgeGradientThreshold {
				edges++
			}
			total++
		}
	}
	return float64(edges) / float64(total)
}

// textureComplexity is the share of distinct 8-neighbour local binary patterns among samples.
func textureComplexity(g *imaging.Gray) float64 {
	if g.Width < 3 || g.Height < 3 {
		return 0
	}
	seen := make(map[uint8]struct{})
	samples := 0
	for y := 1; y < g.Height-1; y += lbpStep {
		for x := 1; x < g.Width-1; x += lbpStep {
			center := g.At(x, y)
			neighbours := [8]float64{
				g.At(x-1, y-1), g.At(x, y-1), g.At(x+1, y-1), g.At(x+1, y),
				g.At(x+1, y+1), g.At(x, y+1), g.At(x-1, y+1), g.At(x-1, y),
			}
			var pattern uint8
			for i, n := range neighbours {
				if n >= center {
					pattern |= 1 << i
				}
			}
			seen[pattern] = struct{}{}
			samples++
		}
	}
	if samples <= 1 {
		return 0
	}
	return float64(len(seen)-1) / float64(min(samples, 256)-1)
}

func normalize(value, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return math.Max(0, math.Min((value-lo)/(hi-lo), 1))
}
