package cancellation

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

const recoveryBatchSize = 100

// Recoverer cancels overdue bookings whose deadline was lost, for example a
// fallback timer that did not survive a restart.
type Recoverer struct {
	scheduler *Scheduler
	interval  time.Duration

	now func() time.Time
}

func NewRecoverer(scheduler *Scheduler, interval time.Duration) *Recoverer {
	if scheduler == nil {
		panic("scheduler must be set")
	}
	if interval <= 0 {
		panic("interval must be positive")
	}

	return &Recoverer{
		scheduler: scheduler,
		interval:  interval,
		now:       time.Now,
	}
}

// RecoverOverdue cancels every unpaid booking past its deadline and returns how many it cancelled.
func (r *Recoverer) RecoverOverdue(ctx context.Context) (int, error) {
	cancelled := 0
	for {
		ids, err := r.scheduler.repo.FindOverdue(ctx, r.now(), recoveryBatchSize)
		if err != nil {
			return cancelled, err
		}

		for _, id := range ids {
			ok, err := r.scheduler.cancelExpired(ctx, id)
			if err != nil {
				return cancelled, err
			}
			if ok {
				cancelled++
			}
		}

		if len(ids) < recoveryBatchSize {
			return cancelled, nil
		}
	}
}

// Run recovers once right away and then every interval until ctx is done.
func (r *Recoverer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		cancelled, err := r.RecoverOverdue(ctx)
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("Could not recover overdue bookings")
		} else if cancelled > 0 {
			log.FromContext(ctx).WithField("cancelled", cancelled).Info("Cancelled overdue bookings")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
