package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegistrySizer reports how many identities are loaded.
type RegistrySizer interface {
	Len() int
}

type HealthHandler struct {
	db       Pinger
	registry func() RegistrySizer
}

// NewHealthHandler builds the health endpoints. db and registry may be nil,
// in which case the matching readiness check is skipped.
func NewHealthHandler(db Pinger, registry func() RegistrySizer) *HealthHandler {
	return &HealthHandler{db: db, registry: registry}
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Identities *int              `json:"identities,omitempty"`
	Checks     map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status: "ready",
		Checks: map[string]string{},
	}

	if h.db != nil {
		if err := h.db.Ping(c.UserContext()); err != nil {
			resp.Status = "not_ready"
			resp.Checks["database"] = err.Error()
		} else {
			resp.Checks["database"] = "ok"
		}
	}

	if h.registry != nil {
		n := h.registry().Len()
		resp.Identities = &n
		if n == 0 {
			// An empty registry still serves requests; every face is unknown.
			resp.Checks["registry"] = "empty"
		} else {
			resp.Checks["registry"] = "ok"
		}
	}

	if resp.Status != "ready" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
