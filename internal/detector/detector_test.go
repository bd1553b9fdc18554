package detector

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 4)
	}
	img.Set(0, 0, color.Gray{Y: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type staticDetector struct {
	name    string
	faces   int
	initErr error
	callErr error
}

func (s *staticDetector) Name() string                   { return s.name }
func (s *staticDetector) Init(ctx context.Context) error { return s.initErr }
func (s *staticDetector) Detect(ctx context.Context, data []byte) ([]Detection, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	out := make([]Detection, s.faces)
	for i := range out {
		out[i] = Detection{BBox: []float64{0, 0, 4, 4}, Confidence: 0.5 + float64(i)/10}
	}
	return out, nil
}

func TestRegistryDetect(t *testing.T) {
	tests := []struct {
		name          string
		detectors     []Detector
		wantFaces     int
		wantSuccess   bool
		wantAvailable int
	}{
		{
			name:          "max count across backends",
			detectors:     []Detector{&staticDetector{name: "a", faces: 1}, &staticDetector{name: "b", faces: 2}},
			wantFaces:     2,
			wantSuccess:   true,
			wantAvailable: 2,
		},
		{
			name:          "no faces is not an error",
			detectors:     []Detector{&staticDetector{name: "a"}},
			wantFaces:     0,
			wantSuccess:   false,
			wantAvailable: 1,
		},
		{
			name: "unavailable backend skipped",
			detectors: []Detector{
				&staticDetector{name: "a", faces: 3, initErr: errors.New("no model")},
				&staticDetector{name: "b", faces: 1},
			},
			wantFaces:     1,
			wantSuccess:   true,
			wantAvailable: 1,
		},
		{
			name: "per-call failure is no evidence",
			detectors: []Detector{
				&staticDetector{name: "a", callErr: errors.New("timeout")},
				&staticDetector{name: "b", faces: 1},
			},
			wantFaces:     1,
			wantSuccess:   true,
			wantAvailable: 2,
		},
		{
			name:          "no backends at all",
			wantFaces:     0,
			wantSuccess:   false,
			wantAvailable: 0,
		},
	}

	data := testPNG(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistryFrom(context.Background(), tt.detectors...)
			if got := len(r.Available()); got != tt.wantAvailable {
				t.Errorf("Available() = %d backends, want %d", got, tt.wantAvailable)
			}

			result, err := r.Detect(context.Background(), data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.FacesDetected != tt.wantFaces {
				t.Errorf("FacesDetected = %d, want %d", result.FacesDetected, tt.wantFaces)
			}
			if result.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", result.Success, tt.wantSuccess)
			}
			for _, d := range result.Detections {
				if d.Method == "" {
					t.Error("detection without method")
				}
			}
		})
	}
}

func TestRegistryDetectOrdersByConfidence(t *testing.T) {
	r := NewRegistryFrom(context.Background(), &staticDetector{name: "a", faces: 3})
	result, err := r.Detect(context.Background(), testPNG(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(result.Detections); i++ {
		if result.Detections[i].Confidence > result.Detections[i-1].Confidence {
			t.Fatalf("detections not sorted by confidence: %+v", result.Detections)
		}
	}
	if result.BestConfidence() != result.Detections[0].Confidence {
		t.Errorf("BestConfidence() = %v, want %v", result.BestConfidence(), result.Detections[0].Confidence)
	}
}

func TestRegistryDetectInvalidImage(t *testing.T) {
	r := NewRegistryFrom(context.Background(), &staticDetector{name: "a", faces: 1})
	for _, data := range [][]byte{nil, []byte("not an image")} {
		_, err := r.Detect(context.Background(), data)
		if !errors.Is(err, imaging.ErrInvalidImage) {
			t.Errorf("Detect(%q) error = %v, want ErrInvalidImage", data, err)
		}
	}
}

func TestNewRegistryFaceAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"faces_count":2,"model":"buffalo_l","faces":[
			{"face_index":0,"dim":2,"embedding":[1,0],"bbox":[0,0,4,4],"det_score":0.8}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	r := NewRegistry(context.Background(), []config.BackendConfig{
		{Name: "insightface", Kind: "faceapi", URL: server.URL, Timeout: time.Second},
		{Name: "deepface", Kind: "faceapi", URL: down.URL, Timeout: time.Second},
		{Name: "dlib", Kind: "native", URL: server.URL, Timeout: time.Second},
	})

	if got := r.Available(); len(got) != 1 || got[0] != "insightface" {
		t.Errorf("Available() = %v, want [insightface]", got)
	}
	if got := r.Unavailable(); len(got) != 2 {
		t.Errorf("Unavailable() = %v, want 2 backends", got)
	}

	result, err := r.Detect(context.Background(), testPNG(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FacesDetected != 2 {
		t.Errorf("FacesDetected = %d, want 2 (server faces_count)", result.FacesDetected)
	}
	if result.PerBackend["insightface"] != 2 {
		t.Errorf("PerBackend = %v", result.PerBackend)
	}
}
