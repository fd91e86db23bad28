// Package trigger is the fire-and-forget surface in front of the pipeline.
// Every source of work (admin endpoints, approval events, the maintenance
// ticker) funnels through here; failures are logged, never propagated back to
// the source.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"campuscard/internal/card/service"
)

// jobTimeout bounds a single background generation, render included.
const jobTimeout = 2 * time.Minute

// Triggers dispatches pipeline work onto background goroutines.
type Triggers struct {
	svc    *service.Service
	logger *slog.Logger

	wg sync.WaitGroup
}

func New(svc *service.Service, logger *slog.Logger) *Triggers {
	return &Triggers{svc: svc, logger: logger}
}

// OnApprovalApproved schedules a generation after an application was approved.
func (t *Triggers) OnApprovalApproved(subjectID uuid.UUID) {
	t.dispatch("approval", func(ctx context.Context) error {
		_, err := t.svc.Generate(ctx, subjectID, "")
		return err
	}, "subject_id", subjectID)
}

// OnManualEdit schedules a rebuild after subject data or the photo changed.
func (t *Triggers) OnManualEdit(subjectID uuid.UUID) {
	t.dispatch("manual_edit", func(ctx context.Context) error {
		if err := t.svc.MarkPhotoReplaced(ctx, subjectID); err != nil {
			return err
		}
		_, err := t.svc.Generate(ctx, subjectID, "")
		return err
	}, "subject_id", subjectID)
}

// OnMaintenanceSweep schedules a full self-heal sweep.
func (t *Triggers) OnMaintenanceSweep() {
	t.dispatch("sweep", func(ctx context.Context) error {
		_, err := t.svc.Sweep(ctx)
		return err
	})
}

func (t *Triggers) dispatch(source string, job func(context.Context) error, attrs ...any) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := job(ctx); err != nil {
			t.logger.Warn("background trigger failed",
				append([]any{"source", source, "error", err}, attrs...)...)
		}
	}()
}

// Wait blocks until all dispatched jobs finish. Shutdown and test helper.
func (t *Triggers) Wait() {
	t.wg.Wait()
}
