package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/audit"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/metrics"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

type RegistryService struct {
	registry RegistryReloader
	pruner   CachePruner
	model    string
	audit    audit.Logger
	hub      Broadcaster
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type RegistryDeps struct {
	Registry RegistryReloader
	// Pruner is optional; without it the embedding cache only grows.
	Pruner  CachePruner
	Model   string
	Audit   audit.Logger
	Hub     Broadcaster
	Metrics *metrics.Metrics
}

func NewRegistryService(deps RegistryDeps, logger *slog.Logger) *RegistryService {
	if deps.Audit == nil {
		deps.Audit = &audit.NoOpLogger{}
	}
	return &RegistryService{
		registry: deps.Registry,
		pruner:   deps.Pruner,
		model:    deps.Model,
		audit:    deps.Audit,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "registry_service"),
	}
}

// Reload rebuilds the registry from its source directory.
func (s *RegistryService) Reload(ctx context.Context) (*registry.ReloadReport, error) {
	report, err := s.registry.Reload(ctx)
	if err != nil {
		s.metrics.RecordRegistryReload(0, err)
		_ = s.audit.Log(ctx, audit.Event{
			EventType: audit.EventRegistryReloaded,
			Model:     s.model,
			Success:   false,
			Error:     err.Error(),
		})
		return nil, err
	}

	s.metrics.RecordRegistryReload(report.Loaded, nil)
	_ = s.audit.Log(ctx, audit.Event{
		EventType: audit.EventRegistryReloaded,
		Model:     s.model,
		Success:   true,
		Metadata: map[string]string{
			"loaded":      strconv.Itoa(report.Loaded),
			"skipped":     strconv.Itoa(len(report.Skipped)),
			"image_files": strconv.Itoa(report.ImageFiles),
		},
	})

	if s.pruner != nil {
		removed, err := s.pruner.Prune(ctx, s.model, report.ContentHashes)
		if err != nil {
			s.logger.Warn("embedding cache prune failed", "error", err)
		} else if removed > 0 {
			s.logger.Info("embedding cache pruned", "removed", removed)
		}
	}

	if s.hub != nil {
		s.hub.Broadcast("", ws.EventRegistryReloaded, report)
	}

	return report, nil
}

// Identities lists the current snapshot without embeddings.
func (s *RegistryService) Identities() []domain.KnownIdentity {
	return s.registry.Snapshot().Identities()
}
