package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/recognition"
)

// RecognitionService identifies faces in an uploaded image.
type RecognitionService interface {
	Identify(ctx context.Context, imageBytes []byte) ([]domain.IdentificationResult, error)
}

type IdentifyHandler struct {
	service RecognitionService
	logger  *slog.Logger
}

func NewIdentifyHandler(service RecognitionService, logger *slog.Logger) *IdentifyHandler {
	return &IdentifyHandler{
		service: service,
		logger:  logger,
	}
}

// IdentifyResponse response for identify endpoint
type IdentifyResponse struct {
	Faces []domain.IdentificationResult `json:"faces"`
	Best  *domain.IdentificationResult  `json:"best"`
}

// Identify handles POST /v1/identify
func (h *IdentifyHandler) Identify(c *fiber.Ctx) error {
	imageBytes, err := extractAndValidateImage(c)
	if err != nil {
		return err
	}

	results, err := h.service.Identify(c.UserContext(), imageBytes)
	if err != nil {
		return err
	}

	resp := IdentifyResponse{Faces: results}
	if resp.Faces == nil {
		resp.Faces = []domain.IdentificationResult{}
	}
	resp.Best = recognition.Best(results)

	return c.JSON(resp)
}
