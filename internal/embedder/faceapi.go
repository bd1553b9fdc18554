package embedder

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
)

func init() {
	Register("faceapi", newFaceAPIEmbedder)
}

type faceAPIEmbedder struct {
	name   string
	client *faceapi.Client
}

func newFaceAPIEmbedder(cfg config.BackendConfig) (Embedder, error) {
	return &faceAPIEmbedder{
		name:   cfg.Name,
		client: faceapi.NewClient(cfg.URL, cfg.Timeout),
	}, nil
}

func (e *faceAPIEmbedder) Name() string { return e.name }

func (e *faceAPIEmbedder) Init(ctx context.Context) error {
	if err := e.client.Health(ctx); err != nil {
		return fmt.Errorf("%s at %s: %w", e.name, e.client.BaseURL(), err)
	}
	return nil
}

// Embed returns the embedding of the most confidently detected face.
func (e *faceAPIEmbedder) Embed(ctx context.Context, data []byte) ([]float32, error) {
	resp, err := e.client.Faces(ctx, data)
	if err != nil {
		return nil, err
	}
	best := resp.Best()
	if best == nil {
		return nil, nil
	}
	return best.Embedding, nil
}
