package domain

import (
	"encoding/json"
	"image"
	"math"
)

// UnknownIdentity is reported for faces whose nearest reference is not
// within the match threshold.
const UnknownIdentity = "unknown"

// BoundingBox is a face rectangle in pixel coordinates of the original frame.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// KnownIdentity is one registry entry. IdentityID comes from the reference
// image filename without extension.
type KnownIdentity struct {
	IdentityID string    `json:"identity_id"`
	Embedding  []float64 `json:"-"`
	Source     string    `json:"source"`
}

// FaceObservation lives for the duration of a single frame.
type FaceObservation struct {
	Box       BoundingBox
	Embedding []float64
}

// IdentificationResult is produced for every detected face, matched or not.
// Distance is +Inf when the registry was empty; it is written to JSON as
// null.
type IdentificationResult struct {
	Box        BoundingBox `json:"bounding_box"`
	IdentityID string      `json:"identity_id"`
	Distance   float64     `json:"distance"`
	Confidence float64     `json:"confidence"`
}

func (r IdentificationResult) Known() bool {
	return r.IdentityID != "" && r.IdentityID != UnknownIdentity
}

// HasDistance is false when the registry was empty and no distance exists.
func (r IdentificationResult) HasDistance() bool {
	return !math.IsInf(r.Distance, 0) && !math.IsNaN(r.Distance)
}

type identificationResultJSON struct {
	Box        BoundingBox `json:"bounding_box"`
	IdentityID string      `json:"identity_id"`
	Distance   *float64    `json:"distance"`
	Confidence float64     `json:"confidence"`
}

func (r IdentificationResult) MarshalJSON() ([]byte, error) {
	out := identificationResultJSON{
		Box:        r.Box,
		IdentityID: r.IdentityID,
		Confidence: r.Confidence,
	}
	if r.HasDistance() {
		d := r.Distance
		out.Distance = &d
	}
	return json.Marshal(out)
}

func (r *IdentificationResult) UnmarshalJSON(data []byte) error {
	var in identificationResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*r = IdentificationResult{
		Box:        in.Box,
		IdentityID: in.IdentityID,
		Distance:   math.Inf(1),
		Confidence: in.Confidence,
	}
	if in.Distance != nil {
		r.Distance = *in.Distance
	}
	return nil
}
