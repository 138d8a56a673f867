package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

const embeddingDimension = 512

// Provider implementa provider.FaceProvider para testes e desenvolvimento.
// Uma imagem de cor uniforme não tem face; qualquer outra tem uma face
// centralizada ocupando metade da largura e da altura.
type Provider struct{}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

func (p *Provider) DetectFaces(ctx context.Context, data []byte) ([]provider.DetectedFace, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	if isUniform(img) {
		return nil, nil
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	return []provider.DetectedFace{
		{
			BoundingBox: provider.BoundingBox{
				X:      float64(b.Min.X) + w/4,
				Y:      float64(b.Min.Y) + h/4,
				Width:  w / 2,
				Height: h / 2,
			},
			Confidence: 0.99,
		},
	}, nil
}

// EmbedFace gera embedding determinístico baseado no hash do recorte
func (p *Provider) EmbedFace(ctx context.Context, face []byte) ([]float64, error) {
	if len(face) == 0 {
		return nil, domain.ErrInvalidImage
	}
	return generateEmbedding(face), nil
}

func isUniform(img image.Image) bool {
	b := img.Bounds()
	if b.Empty() {
		return true
	}
	r0, g0, b0, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != r0 || g != g0 || bl != b0 {
				return false
			}
		}
	}
	return true
}

// generateEmbedding gera embedding unitário a partir do sha256 dos bytes
func generateEmbedding(data []byte) []float64 {
	hash := sha256.Sum256(data)
	embedding := make([]float64, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var _ provider.FaceProvider = (*Provider)(nil)
