// Package directory is the boundary to the student-management and approval
// collaborators. The pipeline only reads subjects, application statuses, and
// approved photos through it.
package directory

import (
	"context"

	"github.com/google/uuid"

	"campuscard/internal/card/models"
)

// Directory exposes the read-only collaborator surface.
type Directory interface {
	// Subject returns the display fields for a subject, or
	// sentinel.ErrNotFound.
	Subject(ctx context.Context, id uuid.UUID) (models.Subject, error)
	// ApplicationStatus returns the subject's application status, or
	// sentinel.ErrNotFound when no application exists.
	ApplicationStatus(ctx context.Context, subjectID uuid.UUID) (models.ApplicationStatus, error)
	// ApprovedPhoto returns the photo bytes of the subject's approved
	// application. sentinel.ErrNotFound covers both a missing application
	// and an application without a usable photo.
	ApprovedPhoto(ctx context.Context, subjectID uuid.UUID) ([]byte, error)
}
