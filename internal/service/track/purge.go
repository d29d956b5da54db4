package track

import (
	"context"
	"time"

	"fieldtrace/internal/domain/track"
	"fieldtrace/internal/logging"
)

// Purger sweeps expired trail points in the background. Snapshots
// never depend on it; the retention cutoff is always applied at read
// time. The sweep only keeps the trail collection from growing
// without bound.
type Purger struct {
	store    track.Store
	interval time.Duration
	now      func() time.Time
}

// NewPurger creates a purger sweeping at the given interval.
func NewPurger(store track.Store, interval time.Duration) *Purger {
	return &Purger{
		store:    store,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps until the context is canceled.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("trail purger stopped")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Purger) sweep(ctx context.Context) {
	removed, err := p.store.DeleteExpiredTrailPoints(ctx, p.now())
	if err != nil {
		logging.Error().Err(err).Msg("trail expiry sweep failed")
		return
	}
	if removed > 0 {
		logging.Debug().Int64("removed", removed).Msg("expired trail points swept")
	}
}
