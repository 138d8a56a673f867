// Package notify publishes attendance events to downstream systems over
// MQTT and signed HTTP webhooks.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// Publisher delivers attendance events to downstream systems.
type Publisher interface {
	PublishAttendance(ctx context.Context, record *domain.AttendanceRecord) error
	Close()
}

// AttendanceEvent is the JSON payload published for each new record.
type AttendanceEvent struct {
	Type       string    `json:"type"`
	RecordID   string    `json:"record_id"`
	SubjectID  string    `json:"subject_id"`
	Date       string    `json:"date"`
	TimeIn     time.Time `json:"time_in"`
	Confidence float64   `json:"confidence"`
	Method     string    `json:"method"`
}

func NewAttendanceEvent(record *domain.AttendanceRecord) AttendanceEvent {
	return AttendanceEvent{
		Type:       "attendance.marked",
		RecordID:   record.ID.String(),
		SubjectID:  record.SubjectID,
		Date:       record.Date.String(),
		TimeIn:     record.TimeIn,
		Confidence: record.Confidence,
		Method:     string(record.Method),
	}
}

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string

	WebhookURL    string
	WebhookSecret string
}

// New returns a publisher for every configured channel. Without a broker
// or a webhook URL events are discarded.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Publisher, error) {
	var publishers Multi

	if cfg.Broker != "" {
		p := newMQTTPublisher(cfg, logger, mqtt.NewClient)
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
		publishers = append(publishers, p)
	}

	if cfg.WebhookURL != "" {
		p, err := NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, logger)
		if err != nil {
			publishers.Close()
			return nil, err
		}
		publishers = append(publishers, p)
	}

	switch len(publishers) {
	case 0:
		return Nop{}, nil
	case 1:
		return publishers[0], nil
	default:
		return publishers, nil
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) PublishAttendance(context.Context, *domain.AttendanceRecord) error { return nil }
func (Nop) Close()                                                          {}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) PublishAttendance(ctx context.Context, record *domain.AttendanceRecord) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishAttendance(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() {
	for _, p := range m {
		p.Close()
	}
}
