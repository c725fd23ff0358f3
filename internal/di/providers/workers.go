package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/stacksapp/stacks-server/internal/logger"
	"github.com/stacksapp/stacks-server/internal/service"
)

// ReservationSweepJob runs periodic reservation expiry.
type ReservationSweepJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *ReservationSweepJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideReservationSweepJob provides the periodic reservation expiry job.
// Pending holds past their seven-day window and ready holds past their
// forty-eight-hour pickup window are marked expired.
func ProvideReservationSweepJob(i do.Injector) (*ReservationSweepJob, error) {
	circulationService := do.MustInvoke[*service.CirculationService](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(reservationSweepInterval)
		defer ticker.Stop()

		// Initial sweep on startup
		if count, err := circulationService.ExpireReservations(ctx); err != nil {
			log.Warn("Initial reservation sweep failed", "error", err)
		} else if count > 0 {
			log.Info("Initial reservation sweep completed", "expired", count)
		}

		for {
			select {
			case <-ticker.C:
				if count, err := circulationService.ExpireReservations(ctx); err != nil {
					log.Warn("Reservation sweep failed", "error", err)
				} else if count > 0 {
					log.Info("Reservation sweep completed", "expired", count)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Reservation sweep job started")

	return &ReservationSweepJob{cancel: cancel}, nil
}
