package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"campuscard/internal/card/models"
	"campuscard/pkg/platform/sentinel"
)

// MemoryDirectory backs the collaborator surface with maps for tests and
// single-node development.
type MemoryDirectory struct {
	mu       sync.RWMutex
	subjects map[uuid.UUID]models.Subject
	statuses map[uuid.UUID]models.ApplicationStatus
	photos   map[uuid.UUID][]byte
}

// NewMemory constructs an empty in-memory directory.
func NewMemory() *MemoryDirectory {
	return &MemoryDirectory{
		subjects: make(map[uuid.UUID]models.Subject),
		statuses: make(map[uuid.UUID]models.ApplicationStatus),
		photos:   make(map[uuid.UUID][]byte),
	}
}

// AddSubject registers a subject.
func (d *MemoryDirectory) AddSubject(s models.Subject) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects[s.ID] = s
}

// SetApplication registers an application status and optional photo.
func (d *MemoryDirectory) SetApplication(subjectID uuid.UUID, status models.ApplicationStatus, photo []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[subjectID] = status
	if photo != nil {
		d.photos[subjectID] = photo
	} else {
		delete(d.photos, subjectID)
	}
}

func (d *MemoryDirectory) Subject(_ context.Context, id uuid.UUID) (models.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.subjects[id]
	if !ok {
		return models.Subject{}, fmt.Errorf("subject %s: %w", id, sentinel.ErrNotFound)
	}
	return s, nil
}

func (d *MemoryDirectory) ApplicationStatus(_ context.Context, subjectID uuid.UUID) (models.ApplicationStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.statuses[subjectID]
	if !ok {
		return "", fmt.Errorf("application for %s: %w", subjectID, sentinel.ErrNotFound)
	}
	return st, nil
}

func (d *MemoryDirectory) ApprovedPhoto(_ context.Context, subjectID uuid.UUID) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.statuses[subjectID] != models.ApplicationApproved {
		return nil, fmt.Errorf("no approved application for %s: %w", subjectID, sentinel.ErrNotFound)
	}
	photo, ok := d.photos[subjectID]
	if !ok || len(photo) == 0 {
		return nil, fmt.Errorf("approved application for %s has no photo: %w", subjectID, sentinel.ErrNotFound)
	}
	cp := make([]byte, len(photo))
	copy(cp, photo)
	return cp, nil
}
