package service

import (
	"context"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/recognition"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/stream"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

type RecognitionService struct {
	identifier Identifier
	recent     *recognition.Recent
	hub        Broadcaster
	logger     *slog.Logger
}

func NewRecognitionService(identifier Identifier, recent *recognition.Recent, hub Broadcaster, logger *slog.Logger) *RecognitionService {
	return &RecognitionService{
		identifier: identifier,
		recent:     recent,
		hub:        hub,
		logger:     logger.With("component", "recognition_service"),
	}
}

// Identify runs the pipeline on an uploaded image.
func (s *RecognitionService) Identify(ctx context.Context, imageBytes []byte) ([]domain.IdentificationResult, error) {
	if len(imageBytes) == 0 {
		return nil, domain.ErrInvalidImage
	}

	img, err := extractor.Decode(imageBytes)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	results, err := s.identifier.Identify(ctx, img)
	if err != nil {
		return nil, domain.ErrRecognitionUnavailable.WithError(err)
	}

	return results, nil
}

// StreamObserver returns the per-frame callback for subjectID's stream.
// It remembers the best result for a later mark and pushes an
// identity.seen event whenever the recognised identity changes.
func (s *RecognitionService) StreamObserver(subjectID string) stream.ResultFunc {
	var last string
	return func(best domain.IdentificationResult) {
		if s.recent != nil {
			s.recent.Remember(subjectID, best)
		}
		if best.IdentityID == last {
			return
		}
		last = best.IdentityID
		if s.hub != nil {
			s.hub.Broadcast(subjectID, ws.EventIdentitySeen, best)
		}
	}
}
