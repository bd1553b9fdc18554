package quality

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/imaging"
)

func uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func checkerboard(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestAnalyzeUniform(t *testing.T) {
	tests := []struct {
		name           string
		value          uint8
		wantBrightness float64
	}{
		{"black", 0, 0},
		{"white", 255, 1},
		{"mid", 128, 128.0 / 255.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Analyze(uniform(16, 16, tt.value))
			if math.Abs(r.Brightness-tt.wantBrightness) > 1e-3 {
				t.Errorf("Brightness = %f, want %f", r.Brightness, tt.wantBrightness)
			}
			if math.Abs(r.Sharpness) > 1e-9 {
				t.Errorf("Sharpness = %f, want 0", r.Sharpness)
			}
			if math.Abs(r.Contrast) > 1e-9 {
				t.Errorf("Contrast = %f, want 0", r.Contrast)
			}
			want := 0.3 * tt.wantBrightness
			if math.Abs(r.Score-want) > 1e-3 {
				t.Errorf("Score = %f, want %f", r.Score, want)
			}
		})
	}
}

func TestAnalyzeCheckerboardIsSharp(t *testing.T) {
	r := Analyze(checkerboard(32, 32))
	if r.Sharpness <= 1 {
		t.Errorf("Sharpness = %f, want > 1 for a checkerboard", r.Sharpness)
	}
	if r.Score != 1.0 {
		t.Errorf("Score = %f, want capped at 1.0", r.Score)
	}
	if math.Abs(r.Contrast-127.5/128.0) > 1e-6 {
		t.Errorf("Contrast = %f, want %f", r.Contrast, 127.5/128.0)
	}
}

func TestAnalyzeFullResolution(t *testing.T) {
	// 1920x1080 low-contrast checkerboard: every interior Laplacian is +-32
	img := image.NewGray(image.Rect(0, 0, 1920, 1080))
	for y := 0; y < 1080; y++ {
		for x := 0; x < 1920; x++ {
			v := uint8(120)
			if (x+y)%2 == 0 {
				v = 128
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	r := Analyze(img)

	wantSharpness := 1024.0 / 1000.0
	wantScore := 0.3*(124.0/255.0) + 0.5*wantSharpness + 0.2*(4.0/128.0)
	if math.Abs(r.Sharpness-wantSharpness) > 1e-6 {
		t.Errorf("sharpness = %.4f, want %.4f", r.Sharpness, wantSharpness)
	}
	if math.Abs(r.Score-wantScore) > 1e-6 {
		t.Errorf("score = %.4f, want %.4f", r.Score, wantScore)
	}
	if r.Score < 0.5 {
		t.Errorf("score %.4f should clear the default 0.5 quality threshold", r.Score)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	img := checkerboard(20, 10)
	a := Analyze(img)
	b := Analyze(img)
	if a != b {
		t.Errorf("Analyze() not deterministic: %+v vs %+v", a, b)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name                          string
		brightness, sharpness, contra float64
		want                          float64
	}{
		{"zero", 0, 0, 0, 0},
		{"weights", 1, 0, 0, 0.3},
		{"sharp only", 0, 1, 0, 0.5},
		{"contrast only", 0, 0, 1, 0.2},
		{"clamped", 1, 5, 1, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.brightness, tt.sharpness, tt.contra)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestAnalyzeBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, uniform(8, 8, 255)); err != nil {
		t.Fatalf("encode: %v", err)
	}

	r, err := AnalyzeBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(r.Brightness-1) > 1e-9 {
		t.Errorf("Brightness = %f, want 1", r.Brightness)
	}

	if _, err := AnalyzeBytes([]byte("nope")); !errors.Is(err, imaging.ErrInvalidImage) {
		t.Errorf("AnalyzeBytes(garbage) error = %v, want ErrInvalidImage", err)
	}
}
