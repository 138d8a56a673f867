package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

type MockIdentifier struct {
	mock.Mock
}

func (m *MockIdentifier) Identify(ctx context.Context, frame image.Image) ([]domain.IdentificationResult, error) {
	args := m.Called(ctx, frame)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.IdentificationResult), args.Error(1)
}

type MockGate struct {
	mock.Mock
}

func (m *MockGate) Mark(ctx context.Context, subjectID string, result domain.IdentificationResult, day domain.Day) (*domain.AttendanceRecord, error) {
	args := m.Called(ctx, subjectID, result, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AttendanceRecord), args.Error(1)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(subjectID string, eventType ws.EventType, data interface{}) {
	m.Called(subjectID, eventType, data)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishAttendance(ctx context.Context, record *domain.AttendanceRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Reload(ctx context.Context) (*registry.ReloadReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.ReloadReport), args.Error(1)
}

func (m *MockRegistry) Snapshot() *registry.Snapshot {
	args := m.Called()
	return args.Get(0).(*registry.Snapshot)
}

type MockPruner struct {
	mock.Mock
}

func (m *MockPruner) Prune(ctx context.Context, model string, keep []string) (int64, error) {
	args := m.Called(ctx, model, keep)
	return args.Get(0).(int64), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testImage(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		img.Set(x, x, color.White)
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
