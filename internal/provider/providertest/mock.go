// Package providertest holds a testify mock of provider.FaceProvider.
package providertest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

type MockFaceProvider struct {
	mock.Mock
}

func (m *MockFaceProvider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.DetectedFace), args.Error(1)
}

func (m *MockFaceProvider) EmbedFace(ctx context.Context, face []byte) ([]float64, error) {
	args := m.Called(ctx, face)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

var _ provider.FaceProvider = (*MockFaceProvider)(nil)
