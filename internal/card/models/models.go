// Package models defines the card artifact record and its lifecycle.
package models

import (
	"time"

	"github.com/google/uuid"
)

// State is the derived lifecycle position of a card.
type State string

const (
	// StateNoArtifact: no row exists yet for the subject.
	StateNoArtifact State = "NO_ARTIFACT"
	// StatePendingBuild: row exists but no committed blob reference.
	StatePendingBuild State = "PENDING_BUILD"
	// StateReady: a verified blob reference is committed.
	StateReady State = "READY"
	// StateRevoked: administratively blocked; regeneration is refused
	// until the card is restored.
	StateRevoked State = "REVOKED"
	// StateStale: the committed reference was invalidated (photo replaced,
	// token rotated, corruption detected); next access rebuilds.
	StateStale State = "STALE"
)

// Subject carries the display fields printed on a card. It is owned by the
// student-management collaborator; the pipeline only reads it.
type Subject struct {
	ID         uuid.UUID
	MatricNo   string
	FirstName  string
	MiddleName string
	LastName   string
	Department string
	Level      string
	Phone      string
}

// FullName joins the present name parts.
func (s Subject) FullName() string {
	name := ""
	for _, part := range []string{s.FirstName, s.MiddleName, s.LastName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

// ApplicationStatus mirrors the approval workflow states.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationApproved ApplicationStatus = "APPROVED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// Artifact is the persistent record mapping a subject to its generated card.
// One row per subject; the row outlives blob invalidations and is never
// deleted while the subject exists.
type Artifact struct {
	SubjectID uuid.UUID
	// UID is the immutable public verification handle.
	UID uuid.UUID
	// VerifyToken is the secret capability required alongside UID to
	// authorize a verification read. Set once at row creation; rotatable.
	VerifyToken string
	// BlobRef is nil until a render has been committed and verified.
	BlobRef *string
	// Stale marks a committed reference as invalidated without clearing
	// history; the next access rebuilds.
	Stale         bool
	IsActive      bool
	IsRevoked     bool
	RevokedReason string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// State derives the lifecycle position from the row fields.
func (a *Artifact) State() State {
	switch {
	case a == nil:
		return StateNoArtifact
	case a.IsRevoked:
		return StateRevoked
	case a.BlobRef == nil:
		return StatePendingBuild
	case a.Stale:
		return StateStale
	default:
		return StateReady
	}
}

// Expired reports whether the card is past its expiry. Expiry is evaluated
// at read time; rows are never deleted on expiry.
func (a *Artifact) Expired(now time.Time) bool {
	if a.ExpiresAt.IsZero() {
		return false
	}
	return now.After(a.ExpiresAt)
}

// Valid reports whether the card passes every read-time gate.
func (a *Artifact) Valid(now time.Time) bool {
	return a.IsActive && !a.IsRevoked && !a.Expired(now)
}

// NeedsBuild reports whether the next access should trigger generation.
func (a *Artifact) NeedsBuild() bool {
	if a.IsRevoked {
		return false
	}
	return a.BlobRef == nil || a.Stale
}
