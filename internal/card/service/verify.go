package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"campuscard/internal/card/models"
	dErrors "campuscard/pkg/domain-errors"
	"campuscard/pkg/platform/sentinel"
	"campuscard/pkg/secrets"
)

// VerificationResult is what a scanned QR code resolves to.
type VerificationResult struct {
	Card          *models.Artifact
	Subject       models.Subject
	Authenticated bool
	ExpiresAt     time.Time
}

// Summary returns the fields safe to show for this verification. Tokenless
// lookups get a reduced view with no contact details.
func (v *VerificationResult) Summary() map[string]any {
	out := map[string]any{
		"full_name":  v.Subject.FullName(),
		"matric_no":  v.Subject.MatricNo,
		"department": v.Subject.Department,
		"level":      v.Subject.Level,
		"expires_at": v.ExpiresAt,
		"valid":      true,
	}
	if v.Authenticated {
		out["phone"] = v.Subject.Phone
	}
	return out
}

// Verify resolves a card by its public UID and checks the presented token.
// An empty token is the legacy QR format: accepted, but the result is marked
// unauthenticated and carries the reduced summary. Checks run in a fixed
// order: token match, revocation, expiry, then artifact resolvability. A card
// whose image is gone and cannot be rebuilt does not verify as valid.
func (s *Service) Verify(ctx context.Context, uid uuid.UUID, presented string) (*VerificationResult, error) {
	ctx, span := s.tracer.Start(ctx, "card.verify")
	defer span.End()

	card, err := s.cards.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Unknown and mistyped UIDs answer exactly like a bad
			// token, so the endpoint cannot be used to probe which
			// cards exist.
			s.countVerify("not_found")
			return nil, dErrors.Wrap(dErrors.CodeInvalidToken, "unknown card", sentinel.ErrNotFound)
		}
		return nil, err
	}

	authenticated := false
	if presented != "" {
		if !secrets.ConstantTimeEquals(card.VerifyToken, presented) {
			s.countVerify("token_mismatch")
			return nil, dErrors.New(dErrors.CodeInvalidToken, "token does not match")
		}
		authenticated = true
	}

	if card.IsRevoked {
		s.countVerify("revoked")
		return nil, dErrors.Wrap(dErrors.CodeRevoked, "card is revoked", sentinel.ErrRevoked)
	}
	if card.Expired(s.now()) {
		s.countVerify("expired")
		return nil, dErrors.Wrap(dErrors.CodeExpired, "card has expired", sentinel.ErrExpired)
	}

	// A valid answer asserts the artifact exists. Heal a missing blob here;
	// if the heal cannot complete the caller gets unavailable, not valid.
	if _, err := s.EnsureValid(ctx, card); err != nil {
		s.countVerify("unresolvable")
		return nil, err
	}

	subject, err := s.dir.Subject(ctx, card.SubjectID)
	if err != nil {
		return nil, err
	}

	s.countVerify("ok")
	return &VerificationResult{
		Card:          card,
		Subject:       subject,
		Authenticated: authenticated,
		ExpiresAt:     card.ExpiresAt,
	}, nil
}

// CardByUID resolves the persistent record behind a public card UID.
func (s *Service) CardByUID(ctx context.Context, uid uuid.UUID) (*models.Artifact, error) {
	card, err := s.cards.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeNotFound, "unknown card", err)
		}
		return nil, err
	}
	return card, nil
}

// FetchImage returns a serveable copy of the card image, healing the stored
// blob first when it is missing or stale. Callers prefer Result.Ref (redirect
// to the backend) and fall back to Result.Bytes on a degraded serve.
func (s *Service) FetchImage(ctx context.Context, uid uuid.UUID) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "card.fetch_image")
	defer span.End()

	card, err := s.CardByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if card.Expired(s.now()) {
		return nil, dErrors.Wrap(dErrors.CodeExpired, "card has expired", sentinel.ErrExpired)
	}
	return s.EnsureValid(ctx, card)
}

func (s *Service) countVerify(reason string) {
	if s.metrics != nil {
		s.metrics.VerifiesTotal.WithLabelValues(reason).Inc()
	}
}
