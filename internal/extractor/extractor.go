// Package extractor turns decoded images into face boxes and embeddings
// using a provider.FaceProvider. It is shared by the registry loader and
// the frame identification pipeline.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

var (
	ErrDetectionFailed = errors.New("face detection failed")
	ErrEmbeddingFailed = errors.New("face embedding failed")
)

type Extractor struct {
	provider   provider.FaceProvider
	downsample float64
}

// New returns an Extractor that detects on a copy of the frame scaled by
// downsample and embeds crops taken from the full resolution frame.
func New(p provider.FaceProvider, downsample float64) *Extractor {
	return &Extractor{provider: p, downsample: downsample}
}

// Detect returns the boxes of every face in img, in img's coordinates.
func (e *Extractor) Detect(ctx context.Context, img image.Image) ([]domain.BoundingBox, error) {
	small := Downsample(img, e.downsample)

	data, err := EncodeJPEG(small, cropJPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionFailed, err)
	}

	faces, err := e.provider.DetectFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectionFailed, err)
	}

	scaleX := float64(img.Bounds().Dx()) / float64(small.Bounds().Dx())
	scaleY := float64(img.Bounds().Dy()) / float64(small.Bounds().Dy())
	origin := img.Bounds().Min

	boxes := make([]domain.BoundingBox, 0, len(faces))
	for _, f := range faces {
		box := scaleBox(f.BoundingBox, scaleX, scaleY, origin)
		clipped := box.Rect().Intersect(img.Bounds())
		if clipped.Empty() {
			continue
		}
		boxes = append(boxes, domain.BoundingBox{
			X:      clipped.Min.X,
			Y:      clipped.Min.Y,
			Width:  clipped.Dx(),
			Height: clipped.Dy(),
		})
	}

	return boxes, nil
}

// Embed crops box out of img and computes its embedding.
func (e *Extractor) Embed(ctx context.Context, img image.Image, box domain.BoundingBox) ([]float64, error) {
	crop, err := Crop(img, box.Rect())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	data, err := EncodeJPEG(crop, cropJPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	embedding, err := e.provider.EmbedFace(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEmbeddingFailed)
	}

	return embedding, nil
}

// Largest returns the index of the box with the greatest area, or -1.
func Largest(boxes []domain.BoundingBox) int {
	best := -1
	for i, b := range boxes {
		if best < 0 || b.Area() > boxes[best].Area() {
			best = i
		}
	}
	return best
}

func scaleBox(b provider.BoundingBox, sx, sy float64, origin image.Point) domain.BoundingBox {
	x := int(math.Round(b.X * sx))
	y := int(math.Round(b.Y * sy))
	return domain.BoundingBox{
		X:      origin.X + x,
		Y:      origin.Y + y,
		Width:  int(math.Round((b.X+b.Width)*sx)) - x,
		Height: int(math.Round((b.Y+b.Height)*sy)) - y,
	}
}
