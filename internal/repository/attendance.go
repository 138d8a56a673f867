package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

type AttendanceRepository struct {
	pool PgxPool
}

func NewAttendanceRepository(pool PgxPool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

func (r *AttendanceRepository) Exists(ctx context.Context, subjectID string, day domain.Day) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE subject_id = $1 AND date = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, subjectID, day.Time()).Scan(&exists); err != nil {
		return false, fmt.Errorf("check attendance exists: %w", err)
	}

	return exists, nil
}

// Create inserts the record. The (subject_id, date) unique constraint backs
// the gate's per-key lock across processes.
func (r *AttendanceRepository) Create(ctx context.Context, record *domain.AttendanceRecord) error {
	query := `
		INSERT INTO attendance_records (id, subject_id, date, time_in, status, method, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		record.ID,
		record.SubjectID,
		record.Date.Time(),
		record.TimeIn,
		string(record.Status),
		string(record.Method),
		record.Confidence,
	).Scan(&record.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyMarked.WithError(err)
		}
		return fmt.Errorf("create attendance: %w", err)
	}

	return nil
}

func (r *AttendanceRepository) CountByDay(ctx context.Context, day domain.Day) (int, error) {
	query := `SELECT COUNT(*) FROM attendance_records WHERE date = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, day.Time()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}

	return count, nil
}
