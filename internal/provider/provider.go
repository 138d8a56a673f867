package provider

import "context"

// FaceProvider is the detection and embedding backend used by the
// recognition pipeline and the registry loader.
type FaceProvider interface {
	// DetectFaces returns the faces found in the image, boxes in pixel
	// coordinates of that image. Zero faces is not an error.
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)

	// EmbedFace computes the embedding of an already cropped face image.
	EmbedFace(ctx context.Context, face []byte) ([]float64, error)
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
}

// BoundingBox represents the face area in the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}
