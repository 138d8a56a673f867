// Package recognition runs the frame identification pipeline: detect the
// faces in a frame, embed each one and match it against the registry.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/metrics"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
)

// ErrDetectionFailed is returned when the detector itself fails. Callers
// treat it as a frame without faces.
var ErrDetectionFailed = extractor.ErrDetectionFailed

// FaceExtractor detects and embeds faces.
type FaceExtractor interface {
	Detect(ctx context.Context, img image.Image) ([]domain.BoundingBox, error)
	Embed(ctx context.Context, img image.Image, box domain.BoundingBox) ([]float64, error)
}

// SnapshotSource provides the registry snapshot to match against.
type SnapshotSource interface {
	Snapshot() *registry.Snapshot
}

type Pipeline struct {
	extractor FaceExtractor
	registry  SnapshotSource
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewPipeline(ex FaceExtractor, reg SnapshotSource, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		extractor: ex,
		registry:  reg,
		metrics:   m,
		logger:    logger.With("component", "pipeline"),
	}
}

// Identify returns one result per detected face that could be embedded,
// unknown faces included. A frame without faces yields an empty slice and
// no error. A face whose embedding fails is logged and left out; the other
// faces in the frame are still matched.
func (p *Pipeline) Identify(ctx context.Context, frame image.Image) ([]domain.IdentificationResult, error) {
	start := time.Now()

	boxes, err := p.extractor.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	if len(boxes) == 0 {
		p.metrics.ObserveIdentify(time.Since(start), 0, 0)
		return []domain.IdentificationResult{}, nil
	}

	// one snapshot for the whole frame
	snapshot := p.registry.Snapshot()

	results := make([]domain.IdentificationResult, 0, len(boxes))
	known := 0
	for _, box := range boxes {
		embedding, err := p.extractor.Embed(ctx, frame, box)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("identify: %w", err)
			}
			p.logger.Warn("face skipped", "box", box, "error", err)
			continue
		}

		result := snapshot.Identify(domain.FaceObservation{Box: box, Embedding: embedding})
		if result.Known() {
			known++
		}
		results = append(results, result)
	}

	p.metrics.ObserveIdentify(time.Since(start), known, len(results)-known)

	return results, nil
}

// Best returns the most confident known result, or nil when every face is
// unknown. Ties keep the earlier result.
func Best(results []domain.IdentificationResult) *domain.IdentificationResult {
	var best *domain.IdentificationResult
	for i := range results {
		if !results[i].Known() {
			continue
		}
		if best == nil || results[i].Confidence > best.Confidence {
			best = &results[i]
		}
	}
	return best
}
