// Package reservation lets a client soft-claim seats before it submits a booking.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/metrics"
)

const sweepBatchSize = 100

type TripsRepository interface {
	Get(ctx context.Context, tripID string) (entity.Trip, error)
}

type SeatsRepository interface {
	Claim(ctx context.Context, tripID, seatID, claimID, userID string) (bool, error)
	ReleaseClaim(ctx context.Context, tripID, seatID, claimID string) (bool, error)
}

type EventBus interface {
	Publish(ctx context.Context, event any) error
}

type Config struct {
	TTL            time.Duration
	SweepInterval  time.Duration
	DefaultSeatCap int
}

type Manager struct {
	store    Store
	trips    TripsRepository
	seats    SeatsRepository
	eventBus EventBus
	config   Config

	now func() time.Time
}

func NewManager(
	store Store,
	trips TripsRepository,
	seats SeatsRepository,
	eventBus EventBus,
	config Config,
) *Manager {
	if store == nil {
		panic("store must be set")
	}
	if trips == nil {
		panic("trips repository must be set")
	}
	if seats == nil {
		panic("seats repository must be set")
	}
	if eventBus == nil {
		panic("event bus must be set")
	}
	if config.TTL <= 0 || config.SweepInterval <= 0 || config.DefaultSeatCap <= 0 {
		panic(fmt.Sprintf("invalid reservation config: %+v", config))
	}

	return &Manager{
		store:    store,
		trips:    trips,
		seats:    seats,
		eventBus: eventBus,
		config:   config,
		now:      time.Now,
	}
}

// Claim soft-claims an AVAILABLE seat for userID. Claiming a seat the user
// already holds returns the existing claim.
func (m *Manager) Claim(ctx context.Context, userID, tripID, seatID string) (entity.Reservation, error) {
	if userID == "" {
		return entity.Reservation{}, entity.ValidationError{Field: "user_id", Msg: "claim owner is required"}
	}
	if _, err := uuid.Parse(seatID); err != nil {
		return entity.Reservation{}, entity.ErrSeatsInvalid
	}

	trip, err := m.trips.Get(ctx, tripID)
	if err != nil {
		return entity.Reservation{}, err
	}
	if !trip.IsBookable() || trip.HasDeparted(m.now()) {
		return entity.Reservation{}, entity.ErrTripNotBookable
	}

	r := entity.Reservation{
		ID:       uuid.NewString(),
		UserID:   userID,
		TripID:   trip.ID,
		SeatID:   seatID,
		ExpireAt: m.now().Add(m.config.TTL),
	}

	err = m.store.Reserve(ctx, r, trip.SeatCap(m.config.DefaultSeatCap))
	if errors.Is(err, ErrSeatClaimed) {
		existing, ok, getErr := m.store.Get(ctx, trip.ID, seatID)
		if getErr == nil && ok && existing.UserID == userID {
			return existing, nil
		}
		metrics.SeatClaims.WithLabelValues("unavailable").Inc()
		return entity.Reservation{}, entity.ErrSeatUnavailable
	}
	if errors.Is(err, entity.ErrClaimLimitExceeded) {
		metrics.SeatClaims.WithLabelValues("limit_exceeded").Inc()
		return entity.Reservation{}, err
	}
	if err != nil {
		return entity.Reservation{}, err
	}

	claimed, err := m.seats.Claim(ctx, trip.ID, seatID, r.ID, userID)
	if err != nil || !claimed {
		if _, removeErr := m.store.Remove(ctx, r); removeErr != nil {
			log.FromContext(ctx).WithError(removeErr).WithField("seat_id", seatID).Error("Could not roll back claim")
		}
		if err != nil {
			return entity.Reservation{}, err
		}
		metrics.SeatClaims.WithLabelValues("unavailable").Inc()
		return entity.Reservation{}, entity.ErrSeatUnavailable
	}

	metrics.SeatClaims.WithLabelValues("claimed").Inc()
	m.publishSeatChange(ctx, r, entity.SeatStatusReserved, entity.SeatReasonClaimed)

	return r, nil
}

// Release drops the claim userID holds on the seat. Releasing a claim that does
// not exist or belongs to someone else is a no-op.
func (m *Manager) Release(ctx context.Context, userID, tripID, seatID string) error {
	r, ok, err := m.store.Get(ctx, tripID, seatID)
	if err != nil {
		return err
	}
	if !ok || r.UserID != userID {
		return nil
	}

	_, err = m.release(ctx, r, entity.SeatReasonReleased)
	return err
}

// Forget drops claims that a booking has taken over. The seats stay with the booking.
func (m *Manager) Forget(ctx context.Context, userID, tripID string, seatIDs []string) error {
	var errs []error
	for _, seatID := range seatIDs {
		r, ok, err := m.store.Get(ctx, tripID, seatID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok || r.UserID != userID {
			continue
		}
		if _, err := m.store.Remove(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SweepExpired releases every claim past its expiry and returns how many seats it freed.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	released := 0
	for {
		expired, err := m.store.Expired(ctx, m.now(), sweepBatchSize)
		if err != nil {
			return released, err
		}

		for _, r := range expired {
			freed, err := m.release(ctx, r, entity.SeatReasonClaimExpired)
			if err != nil {
				return released, err
			}
			if freed {
				released++
			}
		}

		if len(expired) < sweepBatchSize {
			return released, nil
		}
	}
}

// Run sweeps expired claims every SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			released, err := m.SweepExpired(ctx)
			if err != nil {
				log.FromContext(ctx).WithError(err).Error("Could not sweep expired seat claims")
				continue
			}
			if released > 0 {
				log.FromContext(ctx).WithField("released", released).Info("Released expired seat claims")
			}
		}
	}
}

// release frees the seat first and drops the claim afterwards, so a failed seat
// update leaves the claim in place for the next sweep.
func (m *Manager) release(ctx context.Context, r entity.Reservation, reason string) (bool, error) {
	freed, err := m.seats.ReleaseClaim(ctx, r.TripID, r.SeatID, r.ID)
	if err != nil {
		return false, err
	}

	if _, err := m.store.Remove(ctx, r); err != nil {
		return false, err
	}

	if freed {
		m.publishSeatChange(ctx, r, entity.SeatStatusAvailable, reason)
	}

	return freed, nil
}

func (m *Manager) publishSeatChange(ctx context.Context, r entity.Reservation, status entity.SeatStatus, reason string) {
	err := m.eventBus.Publish(ctx, entity.SeatStatusChanged_v1{
		Header: entity.NewEventHeader(),
		TripID: r.TripID,
		SeatID: r.SeatID,
		Status: status,
		Reason: reason,
	})
	if err != nil {
		log.FromContext(ctx).WithError(err).WithFields(logrus.Fields{
			"trip_id": r.TripID,
			"seat_id": r.SeatID,
		}).Warn("Could not publish seat status change")
	}
}
