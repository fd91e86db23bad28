package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"campuscard/internal/card/models"
	"campuscard/pkg/platform/sentinel"
)

// PostgresDirectory reads subjects and applications from the shared database.
// The rows are owned by the student-management system; this adapter never
// writes them.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed directory.
func NewPostgres(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Subject(ctx context.Context, id uuid.UUID) (models.Subject, error) {
	var s models.Subject
	err := d.db.QueryRowContext(ctx,
		`SELECT id, matric_no, first_name, middle_name, last_name, department, level, phone
		 FROM subjects WHERE id = $1`, id,
	).Scan(&s.ID, &s.MatricNo, &s.FirstName, &s.MiddleName, &s.LastName, &s.Department, &s.Level, &s.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subject{}, fmt.Errorf("subject %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Subject{}, fmt.Errorf("query subject: %w", err)
	}
	return s, nil
}

func (d *PostgresDirectory) ApplicationStatus(ctx context.Context, subjectID uuid.UUID) (models.ApplicationStatus, error) {
	var status string
	err := d.db.QueryRowContext(ctx,
		`SELECT status FROM applications WHERE subject_id = $1`, subjectID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("application for %s: %w", subjectID, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query application status: %w", err)
	}
	return models.ApplicationStatus(status), nil
}

func (d *PostgresDirectory) ApprovedPhoto(ctx context.Context, subjectID uuid.UUID) ([]byte, error) {
	var photo []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT photo FROM applications WHERE subject_id = $1 AND status = $2`,
		subjectID, string(models.ApplicationApproved),
	).Scan(&photo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no approved application for %s: %w", subjectID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query approved photo: %w", err)
	}
	if len(photo) == 0 {
		return nil, fmt.Errorf("approved application for %s has no photo: %w", subjectID, sentinel.ErrNotFound)
	}
	return photo, nil
}
