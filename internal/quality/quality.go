// Package quality scores how usable a face capture is from its pixel statistics.
package quality

import (
	"image"
	"math"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

// Report holds the measured image statistics and the combined quality score.
type Report struct {
	Brightness float64 `json:"brightness"` // mean luma / 255, in [0,1]
	Sharpness  float64 `json:"sharpness"`  // Laplacian variance / 1000, unbounded above
	Contrast   float64 `json:"contrast"`   // luma standard deviation / 128
	Score      float64 `json:"quality_score"`
}

// AnalyzeBytes decodes data and analyzes it. Returns imaging.ErrInvalidImage
// when the buffer cannot be decoded.
func AnalyzeBytes(data []byte) (Report, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return Report{}, err
	}
	return Analyze(img), nil
}

// Analyze computes brightness, sharpness and contrast of an image at its full
// resolution. The score is 0.3*brightness + 0.5*sharpness + 0.2*contrast, capped at 1.0.
func Analyze(img image.Image) Report {
	gray := imaging.ToGray(img)

	mean, std := meanStd(gray.Pix)
	r := Report{
		Brightness: mean / 255.0,
		Sharpness:  laplacianVariance(gray) / constants.SharpnessNormalizer,
		Contrast:   std / constants.ContrastNormalizer,
	}
	r.Score = Score(r.Brightness, r.Sharpness, r.Contrast)
	return r
}

// Score combines the three measurements into a quality score in [0,1].
func Score(brightness, sharpness, contrast float64) float64 {
	s := constants.QualityBrightnessWeight*brightness +
		constants.QualitySharpnessWeight*sharpness +
		constants.QualityContrastWeight*contrast
	return math.Max(0, math.Min(s, 1.0))
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// laplacianVariance returns the variance of the 4-neighbour Laplacian over interior pixels.
func laplacianVariance(g *imaging.Gray) float64 {
	if g.Width < 3 || g.Height < 3 {
		return 0
	}

	lap := make([]float64, 0, (g.Width-2)*(g.Height-2))
	for y := 1; y < g.Height-1; y++ {
		for x := 1; x < g.Width-1; x++ {
			v := g.At(x-1, y) + g.At(x+1, y) + g.At(x, y-1) + g.At(x, y+1) - 4*g.At(x, y)
			lap = append(lap, v)
		}
	}

	_, std := meanStd(lap)
	return std * std
}
