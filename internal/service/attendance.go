package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/audit"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/metrics"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/notify"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/recognition"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

const notifyTimeout = 10 * time.Second

// Gate outcomes reported to metrics.
const (
	outcomeMarked        = "marked"
	outcomeAlreadyMarked = "already_marked"
	outcomeMismatch      = "identity_mismatch"
	outcomeLowConfidence = "low_confidence"
	outcomeError         = "error"
)

type AttendanceService struct {
	identifier Identifier
	gate       AttendanceGate
	recent     *recognition.Recent
	audit      audit.Logger
	hub        Broadcaster
	publisher  notify.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	location   *time.Location
	now        func() time.Time

	pending sync.WaitGroup
}

type AttendanceDeps struct {
	Identifier Identifier
	Gate       AttendanceGate
	Recent     *recognition.Recent
	Audit      audit.Logger
	Hub        Broadcaster
	Publisher  notify.Publisher
	Metrics    *metrics.Metrics
	Location   *time.Location
}

func NewAttendanceService(deps AttendanceDeps, logger *slog.Logger) *AttendanceService {
	if deps.Audit == nil {
		deps.Audit = &audit.NoOpLogger{}
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Nop{}
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &AttendanceService{
		identifier: deps.Identifier,
		gate:       deps.Gate,
		recent:     deps.Recent,
		audit:      deps.Audit,
		hub:        deps.Hub,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "attendance_service"),
		location:   deps.Location,
		now:        time.Now,
	}
}

// Mark records today's attendance for subjectID. With an image the
// pipeline runs on it; without one the subject's most recent stream
// identification is used.
func (s *AttendanceService) Mark(ctx context.Context, subjectID string, imageBytes []byte) (*domain.AttendanceRecord, error) {
	result, err := s.resolve(ctx, subjectID, imageBytes)
	if err != nil {
		return nil, err
	}

	day := domain.DayOf(s.now().In(s.location))

	record, err := s.gate.Mark(ctx, subjectID, result, day)
	s.metrics.RecordGateDecision(gateOutcome(err))
	s.auditDecision(ctx, subjectID, result, err)

	if err != nil {
		return nil, err
	}

	if s.recent != nil {
		s.recent.Forget(subjectID)
	}
	if s.hub != nil {
		s.hub.Broadcast(subjectID, ws.EventAttendanceMarked, record)
	}
	s.publish(record)

	s.logger.Info("attendance marked",
		"subject_id", subjectID,
		"date", record.Date,
		"confidence", record.Confidence,
	)

	return record, nil
}

// resolve picks the identification the gate will judge. Among several
// faces the subject's own match wins, then the most confident known face,
// then the first face.
func (s *AttendanceService) resolve(ctx context.Context, subjectID string, imageBytes []byte) (domain.IdentificationResult, error) {
	if len(imageBytes) == 0 {
		if s.recent != nil {
			if result, ok := s.recent.Latest(subjectID); ok {
				return result, nil
			}
		}
		return domain.IdentificationResult{}, domain.ErrNoRecentIdentification
	}

	img, err := extractor.Decode(imageBytes)
	if err != nil {
		return domain.IdentificationResult{}, domain.ErrInvalidImage.WithError(err)
	}

	results, err := s.identifier.Identify(ctx, img)
	if err != nil {
		return domain.IdentificationResult{}, domain.ErrRecognitionUnavailable.WithError(err)
	}
	if len(results) == 0 {
		return domain.IdentificationResult{}, domain.ErrNoFaceDetected
	}

	for _, r := range results {
		if r.IdentityID == subjectID {
			return r, nil
		}
	}
	if best := recognition.Best(results); best != nil {
		return *best, nil
	}
	return results[0], nil
}

func (s *AttendanceService) auditDecision(ctx context.Context, subjectID string, result domain.IdentificationResult, err error) {
	event := audit.Event{
		EventType:  audit.EventAttendanceMarked,
		SubjectID:  subjectID,
		IdentityID: result.IdentityID,
		Confidence: result.Confidence,
		Success:    err == nil,
	}
	if err != nil {
		event.EventType = audit.EventAttendanceRejected
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			event.Error = appErr.Code
		} else {
			event.Error = err.Error()
		}
	}
	_ = s.audit.Log(ctx, event)
}

// publish hands the record to the notification channels without holding
// up the request.
func (s *AttendanceService) publish(record *domain.AttendanceRecord) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := s.publisher.PublishAttendance(ctx, record); err != nil {
			s.logger.Warn("attendance notification failed", "subject_id", record.SubjectID, "error", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (s *AttendanceService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func gateOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeMarked
	case errors.Is(err, domain.ErrAlreadyMarked):
		return outcomeAlreadyMarked
	case errors.Is(err, domain.ErrIdentityMismatch):
		return outcomeMismatch
	case errors.Is(err, domain.ErrLowConfidence):
		return outcomeLowConfidence
	default:
		return outcomeError
	}
}
