// Package registry holds the known identities used for face matching.
//
// Readers always see one complete Snapshot. Reload builds a new snapshot
// from the source directory and swaps it in atomically; no snapshot is
// ever modified after construction.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	Dir       string
	Metric    Metric
	Threshold float64
}

type ReloadReport struct {
	Loaded     int           `json:"loaded"`
	Skipped    []SkippedFile `json:"skipped"`
	ImageFiles int           `json:"image_files"`
	DurationMs int64         `json:"duration_ms"`

	ContentHashes []string `json:"-"`
}

type Registry struct {
	current atomic.Pointer[Snapshot]
	reload  sync.Mutex

	loader *Loader
	config Config
	logger *slog.Logger
}

// New returns a registry holding an empty snapshot. Call Reload to load
// the source directory.
func New(loader *Loader, config Config, logger *slog.Logger) *Registry {
	r := &Registry{
		loader: loader,
		config: config,
		logger: logger.With("component", "registry"),
	}
	r.current.Store(NewSnapshot(nil, config.Metric, config.Threshold))
	return r
}

// Snapshot returns the current snapshot. It stays valid and unchanged for
// as long as the caller holds it.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Match is a shorthand for Snapshot().Match.
func (r *Registry) Match(embedding []float64) (string, float64) {
	return r.Snapshot().Match(embedding)
}

// Reload replaces the registry with one built from the source directory.
// On error the previous snapshot stays in place. Concurrent reloads run
// one at a time.
func (r *Registry) Reload(ctx context.Context) (*ReloadReport, error) {
	r.reload.Lock()
	defer r.reload.Unlock()

	start := time.Now()

	result, err := r.loader.Load(ctx, r.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("reload registry: %w", err)
	}

	r.current.Store(NewSnapshot(result.Identities, r.config.Metric, r.config.Threshold))

	report := &ReloadReport{
		Loaded:     len(result.Identities),
		Skipped:    result.Skipped,
		ImageFiles: result.ImageFiles,
		DurationMs: time.Since(start).Milliseconds(),

		ContentHashes: result.ContentHashes,
	}

	r.logger.Info("registry loaded",
		"dir", r.config.Dir,
		"identities", report.Loaded,
		"skipped", len(report.Skipped),
		"duration_ms", report.DurationMs,
	)

	return report, nil
}
