package detector

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
)

func init() {
	Register("faceapi", newFaceAPIDetector)
}

type faceAPIDetector struct {
	name   string
	client *faceapi.Client
}

func newFaceAPIDetector(cfg config.BackendConfig) (Detector, error) {
	return &faceAPIDetector{
		name:   cfg.Name,
		client: faceapi.NewClient(cfg.URL, cfg.Timeout),
	}, nil
}

func (d *faceAPIDetector) Name() string { return d.name }

func (d *faceAPIDetector) Init(ctx context.Context) error {
	if err := d.client.Health(ctx); err != nil {
		return fmt.Errorf("%s at %s: %w", d.name, d.client.BaseURL(), err)
	}
	return nil
}

func (d *faceAPIDetector) Detect(ctx context.Context, data []byte) ([]Detection, error) {
	resp, err := d.client.Faces(ctx, data)
	if err != nil {
		return nil, err
	}
	detections := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		detections = append(detections, Detection{
			BBox:       f.BBox,
			Confidence: f.DetScore,
			Method:     d.name,
			Landmarks:  f.Landmarks,
		})
	}
	// The server may count faces it could not embed.
	for len(detections) < resp.FacesCount {
		detections = append(detections, Detection{Method: d.name})
	}
	return detections, nil
}
