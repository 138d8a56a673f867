// Package attendance turns an identification into at most one attendance
// record per subject and day.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// Store is the persistence collaborator. Create must report a duplicate
// (subject, day) as domain.ErrAlreadyMarked.
type Store interface {
	Exists(ctx context.Context, subjectID string, day domain.Day) (bool, error)
	Create(ctx context.Context, record *domain.AttendanceRecord) error
}

type Gate struct {
	store         Store
	minConfidence float64
	locks         *keyedMutex
	logger        *slog.Logger
	now           func() time.Time
}

func NewGate(store Store, minConfidence float64, logger *slog.Logger) *Gate {
	return &Gate{
		store:         store,
		minConfidence: minConfidence,
		locks:         newKeyedMutex(),
		logger:        logger.With("component", "attendance_gate"),
		now:           time.Now,
	}
}

// Mark records attendance for subjectID on day when result confirms the
// subject's face. Checks run in this order:
//
//   - a record already exists for (subjectID, day): domain.ErrAlreadyMarked
//   - result identifies someone else, or nobody: domain.ErrIdentityMismatch
//   - result confidence below the minimum: domain.ErrLowConfidence
//
// Calls for the same subject and day are serialized, so concurrent marks
// produce exactly one record.
func (g *Gate) Mark(ctx context.Context, subjectID string, result domain.IdentificationResult, day domain.Day) (*domain.AttendanceRecord, error) {
	if subjectID == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("subject id is required"))
	}

	unlock := g.locks.Lock(subjectID + "|" + day.String())
	defer unlock()

	exists, err := g.store.Exists(ctx, subjectID, day)
	if err != nil {
		return nil, fmt.Errorf("check attendance: %w", err)
	}
	if exists {
		return nil, domain.ErrAlreadyMarked
	}

	if !result.Known() || result.IdentityID != subjectID {
		g.logger.Info("identity mismatch",
			"subject_id", subjectID,
			"detected", result.IdentityID,
			"confidence", result.Confidence,
		)
		return nil, domain.ErrIdentityMismatch
	}

	if result.Confidence < g.minConfidence {
		return nil, domain.ErrLowConfidence.WithError(
			fmt.Errorf("confidence %.1f below %.1f", result.Confidence, g.minConfidence))
	}

	now := g.now()
	record := &domain.AttendanceRecord{
		ID:         uuid.New(),
		SubjectID:  subjectID,
		Date:       day,
		TimeIn:     now,
		Status:     domain.StatusPresent,
		Method:     domain.MethodFace,
		Confidence: result.Confidence,
		CreatedAt:  now,
	}

	if err := g.store.Create(ctx, record); err != nil {
		if errors.Is(err, domain.ErrAlreadyMarked) {
			return nil, domain.ErrAlreadyMarked
		}
		return nil, fmt.Errorf("create attendance: %w", err)
	}

	return record, nil
}
