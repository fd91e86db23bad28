// Package store persists card artifact records and provides the locking
// primitive the idempotency guard is built on.
package store

import (
	"context"

	"github.com/google/uuid"

	"campuscard/internal/card/models"
)

// Generation is a locked, in-progress claim on a subject's card row. Exactly
// one Generation per subject can be open at a time; holders must finish with
// Commit or Abandon. State changes become visible to other readers only after
// Commit returns.
type Generation interface {
	// Artifact returns the row as seen under the lock. The guard re-checks
	// BlobRef and staleness here before committing a render.
	Artifact() *models.Artifact
	// Commit sets the blob reference, clears staleness, and releases the lock.
	Commit(ctx context.Context, ref string) error
	// Abandon releases the lock without changes. Safe to call after Commit.
	Abandon() error
}

// Store is the artifact record repository.
type Store interface {
	// GetOrCreate inserts candidate if no row exists for its subject and
	// returns the surviving row. Safe under concurrent first-time calls: a
	// duplicate-insert race resolves to fetching the winner, not an error.
	GetOrCreate(ctx context.Context, candidate *models.Artifact) (card *models.Artifact, created bool, err error)
	// Get returns the row for a subject, or sentinel.ErrNotFound.
	Get(ctx context.Context, subjectID uuid.UUID) (*models.Artifact, error)
	// GetByUID returns the row for a public card UID, or sentinel.ErrNotFound.
	GetByUID(ctx context.Context, uid uuid.UUID) (*models.Artifact, error)
	// BeginGeneration opens the per-subject critical section.
	BeginGeneration(ctx context.Context, subjectID uuid.UUID) (Generation, error)
	// MarkStale invalidates the committed reference without clearing it,
	// so the next access rebuilds.
	MarkStale(ctx context.Context, subjectID uuid.UUID) error
	// ClearRef drops the committed reference entirely (corruption detected).
	ClearRef(ctx context.Context, subjectID uuid.UUID) error
	// SetRevoked flips revocation. reason is stored only when revoking.
	SetRevoked(ctx context.Context, subjectID uuid.UUID, revoked bool, reason string) error
	// RotateToken replaces the verify token and marks the card stale so the
	// next access re-renders the QR.
	RotateToken(ctx context.Context, subjectID uuid.UUID, token string) error
	// List returns every card row, for maintenance sweeps.
	List(ctx context.Context) ([]*models.Artifact, error)
}
