// Package service implements the card pipeline: the idempotency guard around
// render-and-store, self-healing reads, verification, and the administrative
// lifecycle operations.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"campuscard/internal/blob"
	"campuscard/internal/card/models"
	"campuscard/internal/card/render"
	"campuscard/internal/card/store"
	"campuscard/internal/card/token"
	"campuscard/internal/directory"
	"campuscard/internal/platform/metrics"
	dErrors "campuscard/pkg/domain-errors"
	"campuscard/pkg/platform/sentinel"
)

// Service orchestrates the pipeline. All state lives in the card store and is
// subject-scoped; the service itself only holds collaborators and the
// in-process flight group.
type Service struct {
	cards    store.Store
	dir      directory.Directory
	blobs    *blob.Client
	renderer *render.Renderer
	issuer   *token.Issuer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	cardTTL time.Duration
	now     func() time.Time

	// flight collapses concurrent in-process generate calls per subject
	// before they reach the store's row lock.
	flight singleflight.Group
}

// New wires the service. metrics may be nil in tests.
func New(
	cards store.Store,
	dir directory.Directory,
	blobs *blob.Client,
	renderer *render.Renderer,
	issuer *token.Issuer,
	logger *slog.Logger,
	m *metrics.Metrics,
	cardTTL time.Duration,
) *Service {
	return &Service{
		cards:    cards,
		dir:      dir,
		blobs:    blobs,
		renderer: renderer,
		issuer:   issuer,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("campuscard/card"),
		cardTTL:  cardTTL,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Result reports the outcome of a generation cycle. Exactly one of Ref or
// Bytes carries the artifact: Ref when the blob store commit succeeded, Bytes
// when the pipeline degraded to a single-use in-memory serve after storage
// retries were exhausted. Degraded results are never cached or committed.
type Result struct {
	Card     *models.Artifact
	Ref      string
	Bytes    []byte
	Degraded bool
	// Skipped is true when a valid reference already existed and no render ran.
	Skipped bool
}

// GetOrCreate returns the subject's card row, creating it lazily with a fresh
// verify token and default expiry. Safe under concurrent first-time calls.
func (s *Service) GetOrCreate(ctx context.Context, subjectID uuid.UUID) (*models.Artifact, error) {
	candidate := &models.Artifact{
		SubjectID: subjectID,
		UID:       uuid.New(),
		IsActive:  true,
		ExpiresAt: s.now().Add(s.cardTTL),
	}
	if _, err := token.EnsureToken(candidate); err != nil {
		return nil, fmt.Errorf("issue verify token: %w", err)
	}
	card, created, err := s.cards.GetOrCreate(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.InfoContext(ctx, "card row created",
			"subject_id", subjectID,
			"card_uid", card.UID,
		)
	}
	return card, nil
}

// Generate runs one guarded render-and-store cycle for the subject. baseURL
// is the request-derived origin for the QR verification link; empty means the
// configured site origin. Concurrent calls for the same subject collapse to a
// single winner; the rest observe its result.
func (s *Service) Generate(ctx context.Context, subjectID uuid.UUID, baseURL string) (*Result, error) {
	v, err, _ := s.flight.Do(subjectID.String(), func() (any, error) {
		return s.generate(ctx, subjectID, baseURL)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (s *Service) generate(ctx context.Context, subjectID uuid.UUID, baseURL string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "card.generate")
	defer span.End()

	card, err := s.GetOrCreate(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if card.IsRevoked {
		return nil, dErrors.Wrap(dErrors.CodeRevoked, "card is revoked; restore before regenerating", sentinel.ErrRevoked)
	}
	if !card.NeedsBuild() {
		return &Result{Card: card, Ref: *card.BlobRef, Skipped: true}, nil
	}

	// Precondition: the approval can be withdrawn between trigger and
	// execution, so check at execution time (and again under the lock).
	if err := s.requireApproved(ctx, subjectID); err != nil {
		return nil, err
	}

	photo, err := s.dir.ApprovedPhoto(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeInvalidInput, "no approved photo for subject", err)
		}
		return nil, err
	}

	subject, err := s.dir.Subject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeInvalidInput, "unknown subject", err)
		}
		return nil, err
	}

	// Render outside the row lock. CPU-bound, no shared state; the commit
	// re-validates under the lock before the result becomes visible.
	artifactBytes, err := s.renderCard(ctx, subject, card, photo, baseURL)
	if err != nil {
		s.countRender("input_error")
		return nil, err
	}

	key := blobKey(card.UID)
	ref, putErr := s.blobs.Put(ctx, key, artifactBytes)
	if putErr != nil {
		// Storage exhausted its retries. Degrade to an in-memory,
		// single-use serve for the immediate caller; the reference
		// stays null so a later access retries the full cycle.
		s.countRender("degraded")
		if s.metrics != nil {
			s.metrics.DegradedServes.Inc()
		}
		s.logger.WarnContext(ctx, "blob store unavailable, serving render from memory",
			"subject_id", subjectID,
			"error", putErr,
		)
		return &Result{Card: card, Bytes: artifactBytes, Degraded: true}, nil
	}

	gen, err := s.cards.BeginGeneration(ctx, subjectID)
	if err != nil {
		s.discardBlob(ctx, ref)
		return nil, err
	}

	locked := gen.Artifact()
	if locked.IsRevoked {
		_ = gen.Abandon()
		s.discardBlob(ctx, ref)
		return nil, dErrors.Wrap(dErrors.CodeRevoked, "card revoked during generation", sentinel.ErrRevoked)
	}
	if !locked.NeedsBuild() {
		// Another execution committed while we rendered. Discard ours.
		_ = gen.Abandon()
		s.discardBlob(ctx, ref)
		s.countRender("abandoned")
		if s.metrics != nil {
			s.metrics.AbandonedTotal.Inc()
		}
		s.logger.DebugContext(ctx, "render abandoned, concurrent generation won",
			"subject_id", subjectID,
		)
		return &Result{Card: locked, Ref: *locked.BlobRef, Skipped: true}, nil
	}

	// Re-check the approval inside the critical section: a rejection that
	// landed after the trigger must abort the queued generation.
	if err := s.requireApproved(ctx, subjectID); err != nil {
		_ = gen.Abandon()
		s.discardBlob(ctx, ref)
		s.countRender("precondition_lost")
		return nil, err
	}

	if err := gen.Commit(ctx, ref); err != nil {
		s.discardBlob(ctx, ref)
		return nil, err
	}

	s.countRender("ok")
	s.logger.InfoContext(ctx, "card generated",
		"subject_id", subjectID,
		"card_uid", card.UID,
		"blob_ref", ref,
	)

	committed := *locked
	committed.BlobRef = &ref
	committed.Stale = false
	return &Result{Card: &committed, Ref: ref}, nil
}

func (s *Service) renderCard(ctx context.Context, subject models.Subject, card *models.Artifact, photo []byte, baseURL string) ([]byte, error) {
	start := s.now()

	verifyURL, err := s.issuer.BuildVerifyURL(baseURL, card)
	if err != nil {
		return nil, err
	}
	qr, err := token.BuildCode(verifyURL)
	if err != nil {
		return nil, fmt.Errorf("build QR: %w", err)
	}

	out, err := s.renderer.Render(subject, photo, qr)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	}
	return out, nil
}

func (s *Service) requireApproved(ctx context.Context, subjectID uuid.UUID) error {
	status, err := s.dir.ApplicationStatus(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(dErrors.CodeInvalidInput, "subject has no application", err)
		}
		return err
	}
	if status != models.ApplicationApproved {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("application is %s, not approved", status))
	}
	return nil
}

// discardBlob removes an orphaned upload after an abandoned or failed commit.
// Best effort: a leaked object is cheaper than failing the caller.
func (s *Service) discardBlob(ctx context.Context, ref string) {
	if err := s.blobs.Delete(ctx, ref); err != nil {
		s.logger.DebugContext(ctx, "orphan blob not deleted", "blob_ref", ref, "error", err)
	}
}

func (s *Service) countRender(outcome string) {
	if s.metrics != nil {
		s.metrics.RendersTotal.WithLabelValues(outcome).Inc()
	}
}

// blobKey gives each upload attempt a distinct key under the card's UID, so
// an abandoned attempt can delete its orphan without touching the winner's
// object.
func blobKey(uid uuid.UUID) string {
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("cards/%s/%s.png", uid, hex.EncodeToString(nonce))
}
