package deepface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.RetryCount = 0
	return NewProvider(config)
}

func TestProvider_DetectFaces(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{
			{FacialArea: FacialArea{X: 10, Y: 20, W: 100, H: 120}, FaceConfidence: 0.97},
			{FacialArea: FacialArea{X: 200, Y: 40, W: 60, H: 60}, FaceConfidence: 0.88},
		}})
	})

	faces, err := p.DetectFaces(context.Background(), []byte("jpeg"))

	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Equal(t, 10.0, faces[0].BoundingBox.X)
	assert.Equal(t, 120.0, faces[0].BoundingBox.Height)
	assert.Equal(t, 0.88, faces[1].Confidence)
}

func TestProvider_DetectFaces_DropsWholeFrameFallback(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{
			{FacialArea: FacialArea{X: 0, Y: 0, W: 640, H: 480}, FaceConfidence: 0},
		}})
	})

	faces, err := p.DetectFaces(context.Background(), []byte("jpeg"))

	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestProvider_DetectFaces_ServiceDown(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := p.DetectFaces(context.Background(), []byte("jpeg"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
	assert.Contains(t, err.Error(), "detect faces")
}

func TestProvider_EmbedFace(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{
			{Embedding: []float64{0.1, 0.2, 0.3}},
		}})
	})

	emb, err := p.EmbedFace(context.Background(), []byte("crop"))

	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, emb)
}

func TestProvider_EmbedFace_EmptyResponse(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RepresentResponse{})
	})

	_, err := p.EmbedFace(context.Background(), []byte("crop"))

	assert.ErrorIs(t, err, ErrNoFaceInResponse)
}
