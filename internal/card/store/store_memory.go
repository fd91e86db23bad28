package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"campuscard/internal/card/models"
	"campuscard/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound when the requested row does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// MemoryStore keeps card rows in memory for tests and development. The
// per-subject mutexes mirror the row locks the postgres store takes with
// SELECT ... FOR UPDATE.
type MemoryStore struct {
	mu    sync.RWMutex
	cards map[uuid.UUID]*models.Artifact
	locks map[uuid.UUID]*sync.Mutex
}

// NewMemory constructs an empty in-memory card store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		cards: make(map[uuid.UUID]*models.Artifact),
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryStore) subjectLock(subjectID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[subjectID] = l
	}
	return l
}

func clone(a *models.Artifact) *models.Artifact {
	if a == nil {
		return nil
	}
	cp := *a
	if a.BlobRef != nil {
		ref := *a.BlobRef
		cp.BlobRef = &ref
	}
	return &cp
}

func (s *MemoryStore) GetOrCreate(_ context.Context, candidate *models.Artifact) (*models.Artifact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cards[candidate.SubjectID]; ok {
		return clone(existing), false, nil
	}
	cp := clone(candidate)
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.cards[candidate.SubjectID] = cp
	return clone(cp), true, nil
}

func (s *MemoryStore) Get(_ context.Context, subjectID uuid.UUID) (*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[subjectID]
	if !ok {
		return nil, fmt.Errorf("card for subject %s: %w", subjectID, sentinel.ErrNotFound)
	}
	return clone(card), nil
}

func (s *MemoryStore) GetByUID(_ context.Context, uid uuid.UUID) (*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, card := range s.cards {
		if card.UID == uid {
			return clone(card), nil
		}
	}
	return nil, fmt.Errorf("card %s: %w", uid, sentinel.ErrNotFound)
}

type memoryGeneration struct {
	store     *MemoryStore
	subjectID uuid.UUID
	lock      *sync.Mutex
	snapshot  *models.Artifact
	done      bool
}

func (g *memoryGeneration) Artifact() *models.Artifact { return g.snapshot }

func (g *memoryGeneration) Commit(_ context.Context, ref string) error {
	if g.done {
		return fmt.Errorf("generation already finished")
	}
	g.store.mu.Lock()
	card, ok := g.store.cards[g.subjectID]
	if ok {
		card.BlobRef = &ref
		card.Stale = false
		card.UpdatedAt = time.Now()
	}
	g.store.mu.Unlock()
	g.done = true
	g.lock.Unlock()
	if !ok {
		return fmt.Errorf("card for subject %s: %w", g.subjectID, sentinel.ErrNotFound)
	}
	return nil
}

func (g *memoryGeneration) Abandon() error {
	if g.done {
		return nil
	}
	g.done = true
	g.lock.Unlock()
	return nil
}

func (s *MemoryStore) BeginGeneration(_ context.Context, subjectID uuid.UUID) (Generation, error) {
	lock := s.subjectLock(subjectID)
	lock.Lock()

	s.mu.RLock()
	card, ok := s.cards[subjectID]
	var snapshot *models.Artifact
	if ok {
		snapshot = clone(card)
	}
	s.mu.RUnlock()

	if !ok {
		lock.Unlock()
		return nil, fmt.Errorf("card for subject %s: %w", subjectID, sentinel.ErrNotFound)
	}
	return &memoryGeneration{store: s, subjectID: subjectID, lock: lock, snapshot: snapshot}, nil
}

func (s *MemoryStore) update(subjectID uuid.UUID, fn func(*models.Artifact)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[subjectID]
	if !ok {
		return fmt.Errorf("card for subject %s: %w", subjectID, sentinel.ErrNotFound)
	}
	fn(card)
	card.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkStale(_ context.Context, subjectID uuid.UUID) error {
	return s.update(subjectID, func(card *models.Artifact) {
		card.Stale = true
	})
}

func (s *MemoryStore) ClearRef(_ context.Context, subjectID uuid.UUID) error {
	return s.update(subjectID, func(card *models.Artifact) {
		card.BlobRef = nil
		card.Stale = false
	})
}

func (s *MemoryStore) SetRevoked(_ context.Context, subjectID uuid.UUID, revoked bool, reason string) error {
	return s.update(subjectID, func(card *models.Artifact) {
		card.IsRevoked = revoked
		if revoked {
			card.RevokedReason = reason
		} else {
			card.RevokedReason = ""
		}
	})
}

func (s *MemoryStore) RotateToken(_ context.Context, subjectID uuid.UUID, token string) error {
	return s.update(subjectID, func(card *models.Artifact) {
		card.VerifyToken = token
		card.Stale = true
	})
}

func (s *MemoryStore) List(_ context.Context) ([]*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Artifact, 0, len(s.cards))
	for _, card := range s.cards {
		out = append(out, clone(card))
	}
	return out, nil
}
