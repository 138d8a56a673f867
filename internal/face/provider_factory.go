package face

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider/mock"
)

// ProviderType defines supported face recognition provider types
type ProviderType string

const (
	// ProviderTypeDeepFace talks to a DeepFace HTTP service
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeMock is deterministic and offline, for dev/test
	ProviderTypeMock ProviderType = "mock"
)

// NewFaceProvider creates a FaceProvider instance based on configuration.
// Model and detector are fixed per deployment.
func NewFaceProvider(cfg *config.Config) (provider.FaceProvider, error) {
	switch ProviderType(cfg.ProviderType) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s)",
			cfg.ProviderType, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

func createDeepFaceProvider(cfg *config.Config) provider.FaceProvider {
	dfConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		dfConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		dfConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DetectorBackend != "" {
		dfConfig.Detector = cfg.DetectorBackend
	}
	if cfg.DeepFaceTimeout > 0 {
		dfConfig.Timeout = cfg.DeepFaceTimeout
	}
	if cfg.DeepFaceRetries >= 0 {
		dfConfig.RetryCount = cfg.DeepFaceRetries
	}

	return deepface.NewProvider(dfConfig)
}

// ModelName identifies the embedding space produced by the configured
// provider. Cached reference embeddings are only reused under the same name.
func ModelName(cfg *config.Config) string {
	if ProviderType(cfg.ProviderType) == ProviderTypeMock {
		return string(ProviderTypeMock)
	}
	return cfg.DeepFaceModel + "/" + cfg.DetectorBackend
}
