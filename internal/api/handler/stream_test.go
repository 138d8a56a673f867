package handler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/stream"
)

// scriptedCamera returns frames until it runs out, then fails.
type scriptedCamera struct {
	mu     sync.Mutex
	frames int
}

func (c *scriptedCamera) Read(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frames == 0 {
		return nil, errors.New("device unplugged")
	}
	c.frames--
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	img.Set(1, 1, color.White)
	return img, nil
}

func (c *scriptedCamera) Close() error { return nil }

type staticIdentifier struct {
	results []domain.IdentificationResult
}

func (s staticIdentifier) Identify(ctx context.Context, frame image.Image) ([]domain.IdentificationResult, error) {
	return s.results, nil
}

func getStream(producer StreamProducer, observer ObserverFactory, subjectID string) (*http.Response, error) {
	app := newTestApp()
	app.Get("/v1/stream", middleware.Subject(true), NewStreamHandler(context.Background(), producer, observer, testLogger()).Stream)

	req := httptest.NewRequest("GET", "/v1/stream", nil)
	if subjectID != "" {
		req.Header.Set(middleware.HeaderSubjectID, subjectID)
	}
	return app.Test(req, -1)
}

func TestStreamHandler_Stream(t *testing.T) {
	alice := domain.IdentificationResult{
		Box:        domain.BoundingBox{X: 4, Y: 4, Width: 20, Height: 20},
		IdentityID: "alice",
		Distance:   0.1,
		Confidence: 88,
	}
	camera := &scriptedCamera{frames: 3}
	opener := stream.OpenerFunc(func(ctx context.Context, device string) (stream.Camera, error) {
		return camera, nil
	})
	producer := stream.NewProducer(opener, staticIdentifier{results: []domain.IdentificationResult{alice}},
		stream.Config{Device: "test0"}, nil, testLogger())

	var (
		mu   sync.Mutex
		seen []string
	)
	observer := func(subjectID string) stream.ResultFunc {
		return func(best domain.IdentificationResult) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, subjectID+":"+best.IdentityID)
		}
	}

	resp, err := getStream(producer, observer, "alice")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	parts := splitParts(body)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.True(t, bytes.HasPrefix(p, []byte{0xFF, 0xD8}), "part must be a JPEG")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"alice:alice", "alice:alice", "alice:alice"}, seen)
}

func TestStreamHandler_Stream_CameraUnavailable(t *testing.T) {
	opener := stream.OpenerFunc(func(ctx context.Context, device string) (stream.Camera, error) {
		return nil, errors.New("no such device")
	})
	producer := stream.NewProducer(opener, staticIdentifier{}, stream.Config{Device: "test1"}, nil, testLogger())

	resp, err := getStream(producer, nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	parts := splitParts(body)
	require.Len(t, parts, 1, "exactly one placeholder frame")
	assert.True(t, bytes.HasPrefix(parts[0], []byte{0xFF, 0xD8}))
}

func TestStreamHandler_Stream_CameraBusy(t *testing.T) {
	producer := new(MockStreamProducer)
	producer.On("Start", mock.Anything, mock.Anything).Return(nil, stream.ErrCameraBusy)

	resp, err := getStream(producer, nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "CAMERA_BUSY")
}

func TestStreamHandler_Stream_RequiresSubject(t *testing.T) {
	producer := new(MockStreamProducer)

	resp, err := getStream(producer, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	producer.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
}

// splitParts returns the payload of every multipart part in an MJPEG body.
func splitParts(body []byte) [][]byte {
	var parts [][]byte
	for _, chunk := range bytes.Split(body, []byte("--"+streamBoundary+"\r\n")) {
		if len(chunk) == 0 {
			continue
		}
		i := bytes.Index(chunk, []byte("\r\n\r\n"))
		if i < 0 {
			continue
		}
		payload := bytes.TrimSuffix(chunk[i+4:], []byte("\r\n"))
		parts = append(parts, payload)
	}
	return parts
}
