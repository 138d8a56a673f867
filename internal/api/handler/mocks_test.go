package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/stream"
)

// MockRecognitionService is a mock implementation of RecognitionService
type MockRecognitionService struct {
	mock.Mock
}

func (m *MockRecognitionService) Identify(ctx context.Context, imageBytes []byte) ([]domain.IdentificationResult, error) {
	args := m.Called(ctx, imageBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.IdentificationResult), args.Error(1)
}

// MockAttendanceService is a mock implementation of AttendanceService
type MockAttendanceService struct {
	mock.Mock
}

func (m *MockAttendanceService) Mark(ctx context.Context, subjectID string, imageBytes []byte) (*domain.AttendanceRecord, error) {
	args := m.Called(ctx, subjectID, imageBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AttendanceRecord), args.Error(1)
}

// MockRegistryService is a mock implementation of RegistryService
type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) Reload(ctx context.Context) (*registry.ReloadReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.ReloadReport), args.Error(1)
}

func (m *MockRegistryService) Identities() []domain.KnownIdentity {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.KnownIdentity)
}

// MockStreamProducer is a mock implementation of StreamProducer
type MockStreamProducer struct {
	mock.Mock
}

func (m *MockStreamProducer) Start(ctx context.Context, onResult stream.ResultFunc) (*stream.Session, error) {
	args := m.Called(ctx, onResult)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stream.Session), args.Error(1)
}

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp wires the real error handler and subject middleware
func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(testLogger()),
	})
	app.Use(middleware.Subject(false))
	return app
}

// createMultipartRequest builds a form with an optional image part
func createMultipartRequest(imageContent []byte, contentType string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if imageContent != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="test.jpg"`)
		h.Set("Content-Type", contentType)

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		_, _ = part.Write(imageContent)
	}

	_ = writer.WriteField("note", "front door")
	_ = writer.Close()
	return body, writer.FormDataContentType(), nil
}
