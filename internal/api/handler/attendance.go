package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// AttendanceService runs the attendance gate for a subject.
type AttendanceService interface {
	Mark(ctx context.Context, subjectID string, imageBytes []byte) (*domain.AttendanceRecord, error)
}

type AttendanceHandler struct {
	service AttendanceService
	logger  *slog.Logger
}

func NewAttendanceHandler(service AttendanceService, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
		logger:  logger,
	}
}

// Mark handles POST /v1/attendance/mark. The image part is optional; without
// it the subject's most recent stream identification is used.
func (h *AttendanceHandler) Mark(c *fiber.Ctx) error {
	subjectID, err := middleware.GetSubjectID(c)
	if err != nil {
		return err
	}

	imageBytes, err := optionalImage(c)
	if err != nil {
		return err
	}

	record, err := h.service.Mark(c.UserContext(), subjectID, imageBytes)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}
