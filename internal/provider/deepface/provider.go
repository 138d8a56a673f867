package deepface

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

// Provider implements provider.FaceProvider using DeepFace API
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// DetectFaces runs the configured detector. Embeddings returned alongside
// the boxes are discarded; each face is embedded from its own crop.
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	resp, err := p.client.Represent(ctx, base64.StdEncoding.EncodeToString(image))
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		area := result.FacialArea
		// with enforce_detection off DeepFace echoes the full frame when nothing is found
		if area.W <= 0 || area.H <= 0 || result.FaceConfidence == 0 {
			continue
		}
		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(area.X),
				Y:      float64(area.Y),
				Width:  float64(area.W),
				Height: float64(area.H),
			},
			Confidence: result.FaceConfidence,
		})
	}

	return faces, nil
}

// EmbedFace computes the embedding of a face crop.
func (p *Provider) EmbedFace(ctx context.Context, face []byte) ([]float64, error) {
	resp, err := p.client.RepresentCrop(ctx, base64.StdEncoding.EncodeToString(face))
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return nil, ErrNoFaceInResponse
	}

	return resp.Results[0].Embedding, nil
}

var _ provider.FaceProvider = (*Provider)(nil)
