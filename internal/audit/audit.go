// Package audit records gate decisions and registry reloads. Events never
// carry biometric data: no embeddings, no images.
package audit

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventFaceIdentified     EventType = "FACE_IDENTIFIED"
	EventAttendanceMarked   EventType = "ATTENDANCE_MARKED"
	EventAttendanceRejected EventType = "ATTENDANCE_REJECTED"
	EventRegistryReloaded   EventType = "REGISTRY_RELOADED"
)

type Event struct {
	ID         uuid.UUID
	Timestamp  time.Time
	EventType  EventType
	SubjectID  string
	IdentityID string
	Confidence float64
	Model      string
	Success    bool
	// Error is the AppError code for rejected decisions.
	Error    string
	Metadata map[string]string
}

type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger writes one "audit_event" record per event. Failed events are
// logged at Warn so rejections stand out from routine marks.
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.Time("occurred_at", event.Timestamp),
		slog.Bool("success", event.Success),
	}
	if event.SubjectID != "" {
		attrs = append(attrs, slog.String("subject_id", event.SubjectID))
	}
	if event.IdentityID != "" {
		attrs = append(attrs,
			slog.String("identity_id", event.IdentityID),
			slog.Float64("confidence", event.Confidence),
		)
	}
	if event.Model != "" {
		attrs = append(attrs, slog.String("model", event.Model))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error_code", event.Error))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, metadataGroup(event.Metadata))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "audit_event", attrs...)

	return nil
}

func metadataGroup(md map[string]string) slog.Attr {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, slog.String(k, md[k]))
	}
	return slog.Group("metadata", args...)
}

// NoOpLogger discards events.
type NoOpLogger struct{}

func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}
