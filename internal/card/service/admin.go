package service

import (
	"context"

	"github.com/google/uuid"

	"campuscard/pkg/secrets"
)

// Revoke deactivates a card. The record and its blob are kept so the card
// can be restored, but verification and fetches refuse it immediately.
func (s *Service) Revoke(ctx context.Context, subjectID uuid.UUID, reason string) error {
	if err := s.cards.SetRevoked(ctx, subjectID, true, reason); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "card revoked",
		"subject_id", subjectID,
		"reason", reason,
	)
	return nil
}

// Restore lifts a revocation. The existing blob and token stay valid.
func (s *Service) Restore(ctx context.Context, subjectID uuid.UUID) error {
	if err := s.cards.SetRevoked(ctx, subjectID, false, ""); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "card restored", "subject_id", subjectID)
	return nil
}

// RotateToken issues a fresh verify token and marks the card stale, since the
// printed QR code now encodes a dead capability. The next fetch or sweep
// re-renders with the new token.
func (s *Service) RotateToken(ctx context.Context, subjectID uuid.UUID) error {
	tok, err := secrets.GenerateToken()
	if err != nil {
		return err
	}
	if err := s.cards.RotateToken(ctx, subjectID, tok); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "verify token rotated", "subject_id", subjectID)
	return nil
}

// MarkPhotoReplaced flags the card stale after a new photo was approved, so
// the stored image is rebuilt on next access instead of eagerly.
func (s *Service) MarkPhotoReplaced(ctx context.Context, subjectID uuid.UUID) error {
	return s.cards.MarkStale(ctx, subjectID)
}
