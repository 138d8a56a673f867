package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
)

// RegistryService exposes the known-identity registry.
type RegistryService interface {
	Reload(ctx context.Context) (*registry.ReloadReport, error)
	Identities() []domain.KnownIdentity
}

type RegistryHandler struct {
	service RegistryService
	logger  *slog.Logger
}

func NewRegistryHandler(service RegistryService, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{
		service: service,
		logger:  logger,
	}
}

type ListIdentitiesResponse struct {
	Identities []domain.KnownIdentity `json:"identities"`
	Total      int                    `json:"total"`
}

// List handles GET /v1/registry
func (h *RegistryHandler) List(c *fiber.Ctx) error {
	identities := h.service.Identities()
	if identities == nil {
		identities = []domain.KnownIdentity{}
	}
	return c.JSON(ListIdentitiesResponse{
		Identities: identities,
		Total:      len(identities),
	})
}

// Reload handles POST /v1/registry/reload. A failed reload leaves the
// previous snapshot serving.
func (h *RegistryHandler) Reload(c *fiber.Ctx) error {
	report, err := h.service.Reload(c.UserContext())
	if err != nil {
		h.logger.Error("registry reload failed", "error", err)
		return domain.ErrRegistryUnavailable.WithError(err)
	}
	if report.Skipped == nil {
		report.Skipped = []registry.SkippedFile{}
	}
	return c.JSON(report)
}
