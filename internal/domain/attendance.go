package domain

import (
	"time"

	"github.com/google/uuid"
)

const dayLayout = "2006-01-02"

// Day is a calendar day (YYYY-MM-DD), not a timestamp.
type Day string

func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", err
	}
	return DayOf(t), nil
}

func (d Day) String() string {
	return string(d)
}

// Time returns midnight UTC of the day, as stored in a DATE column.
func (d Day) Time() time.Time {
	t, _ := time.Parse(dayLayout, string(d))
	return t
}

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
)

type AttendanceMethod string

const (
	MethodFace   AttendanceMethod = "face"
	MethodManual AttendanceMethod = "manual"
)

// AttendanceRecord is at most one per (SubjectID, Date). It does not
// reference the registry, so it stays valid after an identity is removed.
type AttendanceRecord struct {
	ID         uuid.UUID        `json:"id"`
	SubjectID  string           `json:"subject_id"`
	Date       Day              `json:"date"`
	TimeIn     time.Time        `json:"time_in"`
	Status     AttendanceStatus `json:"status"`
	Method     AttendanceMethod `json:"method"`
	Confidence float64          `json:"confidence"`
	CreatedAt  time.Time        `json:"created_at"`
}
