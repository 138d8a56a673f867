package service

import (
	"context"
	"image"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

type Identifier interface {
	Identify(ctx context.Context, frame image.Image) ([]domain.IdentificationResult, error)
}

type AttendanceGate interface {
	Mark(ctx context.Context, subjectID string, result domain.IdentificationResult, day domain.Day) (*domain.AttendanceRecord, error)
}

type Broadcaster interface {
	Broadcast(subjectID string, eventType ws.EventType, data interface{})
}

type RegistryReloader interface {
	Reload(ctx context.Context) (*registry.ReloadReport, error)
	Snapshot() *registry.Snapshot
}

// CachePruner drops cached reference embeddings no longer in the registry.
type CachePruner interface {
	Prune(ctx context.Context, model string, keep []string) (int64, error)
}
