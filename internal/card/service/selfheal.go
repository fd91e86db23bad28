package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"campuscard/internal/card/models"
	dErrors "campuscard/pkg/domain-errors"
	"campuscard/pkg/platform/sentinel"
)

// sweepConcurrency bounds parallel heals during a maintenance sweep so a full
// rebuild does not saturate the blob backend.
const sweepConcurrency = 4

// EnsureValid returns a serveable result for the card, regenerating when the
// reference is missing, the blob is confirmed unreachable, or the card is
// flagged stale. Cheap when the card is already valid: a single existence
// probe, no render. A heal that cannot complete (no approved photo, storage
// down) comes back as a typed unavailable error, never a fault.
func (s *Service) EnsureValid(ctx context.Context, card *models.Artifact) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "card.ensure_valid")
	defer span.End()

	if card.IsRevoked {
		return nil, dErrors.Wrap(dErrors.CodeRevoked, "card is revoked", sentinel.ErrRevoked)
	}

	if card.BlobRef != nil && !card.Stale {
		ok, err := s.blobs.Exists(ctx, *card.BlobRef)
		if err == nil && ok {
			s.countHeal("valid")
			return &Result{Card: card, Ref: *card.BlobRef, Skipped: true}, nil
		}
		if err != nil {
			// The backend answered with an error rather than a clean
			// miss; treat as temporarily unavailable instead of
			// destroying a possibly-fine reference.
			s.countHeal("probe_failed")
			return nil, dErrors.Wrap(dErrors.CodeUnavailable, "blob backend unreachable", err)
		}
		// Confirmed gone: corrupt reference, clear and rebuild.
		s.logger.WarnContext(ctx, "stored blob unreachable, clearing reference",
			"subject_id", card.SubjectID,
			"blob_ref", *card.BlobRef,
		)
		if err := s.cards.ClearRef(ctx, card.SubjectID); err != nil {
			return nil, err
		}
	}

	result, err := s.Generate(ctx, card.SubjectID, "")
	if err != nil {
		s.countHeal("failed")
		if dErrors.Is(err, dErrors.CodeInvalidInput) {
			return nil, dErrors.Wrap(dErrors.CodeUnavailable, "card cannot be rebuilt yet", err)
		}
		return nil, err
	}
	s.countHeal("rebuilt")
	return result, nil
}

// SweepReport summarizes a maintenance sweep.
type SweepReport struct {
	Total   int
	Rebuilt int
	Skipped int
	Failed  int
}

// Sweep walks every card and heals the broken ones. Revoked cards are left
// alone. Individual failures are logged and counted, never propagated.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	cards, err := s.cards.List(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	report.Total = len(cards)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	results := make([]string, len(cards))
	for i, card := range cards {
		if card.IsRevoked {
			results[i] = "skipped"
			continue
		}
		g.Go(func() error {
			result, err := s.EnsureValid(ctx, card)
			switch {
			case err != nil:
				results[i] = "failed"
				s.logger.WarnContext(ctx, "sweep could not heal card",
					"subject_id", card.SubjectID,
					"error", err,
				)
			case result.Skipped:
				results[i] = "skipped"
			default:
				results[i] = "rebuilt"
			}
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return report, err
	}

	for _, r := range results {
		switch r {
		case "rebuilt":
			report.Rebuilt++
		case "failed":
			report.Failed++
		default:
			report.Skipped++
		}
	}
	if s.metrics != nil {
		s.metrics.SweepLastRepair.Set(float64(report.Rebuilt))
	}
	s.logger.InfoContext(ctx, "maintenance sweep finished",
		"total", report.Total,
		"rebuilt", report.Rebuilt,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *Service) countHeal(outcome string) {
	if s.metrics != nil {
		s.metrics.SelfHealsTotal.WithLabelValues(outcome).Inc()
	}
}
