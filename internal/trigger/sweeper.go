package trigger

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper fires the maintenance sweep on a fixed interval.
type Sweeper struct {
	triggers *Triggers
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(triggers *Triggers, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{triggers: triggers, interval: interval, logger: logger}
}

// Run ticks until ctx is cancelled. No immediate sweep on start; the first
// run happens one full interval in, so restarts do not stampede the store.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("maintenance sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.triggers.OnMaintenanceSweep()
		}
	}
}
