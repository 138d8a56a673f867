package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DetectorSkip tells DeepFace the input is already a face crop.
const DetectorSkip = "skip"

const (
	representPath = "/represent"

	// One /represent response holds a 512-float embedding per face.
	maxResponseSize = 8 << 20
	maxErrorBody    = 512
	maxBackoff      = 30 * time.Second
)

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Model    string
	Detector string
	// RetryCount is the number of retries after the first attempt for
	// transport errors and 5xx responses.
	RetryCount int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:5000",
		Timeout:    30 * time.Second,
		Model:      "ArcFace",
		Detector:   "opencv",
		RetryCount: 1,
	}
}

// Client talks to the DeepFace REST API. Only /represent is used: it
// detects and embeds in one call, or only embeds when detection is skipped.
type Client struct {
	httpClient *http.Client
	config     Config
}

func NewClient(config Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Represent runs the configured detector over a full image. Images without
// faces come back as an empty result list.
func (c *Client) Represent(ctx context.Context, imageBase64 string) (*RepresentResponse, error) {
	return c.represent(ctx, imageBase64, c.config.Detector)
}

// RepresentCrop embeds an image that is already a single face.
func (c *Client) RepresentCrop(ctx context.Context, imageBase64 string) (*RepresentResponse, error) {
	return c.represent(ctx, imageBase64, DetectorSkip)
}

func (c *Client) represent(ctx context.Context, imageBase64, detector string) (*RepresentResponse, error) {
	payload, err := json.Marshal(RepresentRequest{
		Img:      imageBase64,
		Model:    c.config.Model,
		Detector: detector,
		Enforce:  false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp RepresentResponse
	if err := c.postWithRetry(ctx, representPath, payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// calculateBackoff returns 1s, 2s, 4s, ... capped at maxBackoff.
func calculateBackoff(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	if attempt > 6 {
		return maxBackoff
	}
	return min(time.Duration(1<<(attempt-1))*time.Second, maxBackoff)
}

func (c *Client) postWithRetry(ctx context.Context, path string, payload []byte, result any) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		lastErr = c.post(ctx, path, payload, result)
		switch {
		case lastErr == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case isClientError(lastErr):
			return lastErr
		}
	}

	return fmt.Errorf("%w: %v", ErrDeepFaceUnavailable, lastErr)
}

func (c *Client) post(ctx context.Context, path string, payload []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body := io.LimitReader(resp.Body, maxResponseSize)

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return &statusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	if err := json.NewDecoder(body).Decode(result); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
