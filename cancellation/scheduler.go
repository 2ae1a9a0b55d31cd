// Package cancellation voids bookings that were not paid in time.
package cancellation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"

	"github.com/giaotrandev/booking-app-sub000/db/bookings"
	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/jobs"
	"github.com/giaotrandev/booking-app-sub000/metrics"
)

const JobType = "cancel-expired-booking"

type Queue interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type BookingsRepository interface {
	Cancel(ctx context.Context, c bookings.Cancellation) (bool, error)
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type jobPayload struct {
	BookingID string `json:"booking_id"`
}

type Scheduler struct {
	queue       Queue
	repo        BookingsRepository
	maxAttempts int

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewScheduler(queue Queue, repo BookingsRepository, maxAttempts int) *Scheduler {
	if queue == nil {
		panic("queue must be set")
	}
	if repo == nil {
		panic("bookings repository must be set")
	}
	if maxAttempts <= 0 {
		panic("max attempts must be positive")
	}

	return &Scheduler{
		queue:       queue,
		repo:        repo,
		maxAttempts: maxAttempts,
		timers:      make(map[string]*time.Timer),
	}
}

// ScheduleCancellation arms the payment deadline of a booking on the job queue.
// When the queue is unavailable it falls back to an in-process timer, which does
// not survive a restart. The Recoverer covers that case.
func (s *Scheduler) ScheduleCancellation(ctx context.Context, bookingID string, timeout time.Duration) {
	logger := log.FromContext(ctx).WithField("booking_id", bookingID)

	payload, err := json.Marshal(jobPayload{BookingID: bookingID})
	if err == nil {
		err = s.queue.Enqueue(ctx, jobs.Job{
			ID:          "cancel-" + bookingID,
			Type:        JobType,
			Payload:     payload,
			RunAt:       time.Now().Add(timeout),
			MaxAttempts: s.maxAttempts,
		})
	}
	if err == nil {
		return
	}

	logger.WithError(err).Warn("Could not enqueue cancellation job, falling back to an in-process timer")
	s.armTimer(bookingID, timeout)
}

func (s *Scheduler) armTimer(bookingID string, timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if existing, ok := s.timers[bookingID]; ok {
		existing.Stop()
	}

	metrics.CancellationFallbackTimers.Inc()
	s.timers[bookingID] = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		delete(s.timers, bookingID)
		s.mu.Unlock()

		ctx := log.ToContext(context.Background(), logrus.WithField("booking_id", bookingID))
		if err := s.CancelExpiredBooking(ctx, bookingID); err != nil {
			log.FromContext(ctx).WithError(err).Error("Fallback cancellation failed")
		}
	})
}

// CancelExpiredBooking cancels the booking if it is still waiting for its payment.
// Running it for a paid, cancelled or unknown booking is a no-op.
func (s *Scheduler) CancelExpiredBooking(ctx context.Context, bookingID string) error {
	_, err := s.cancelExpired(ctx, bookingID)
	return err
}

func (s *Scheduler) cancelExpired(ctx context.Context, bookingID string) (bool, error) {
	cancelled, err := s.repo.Cancel(ctx, bookings.Cancellation{
		BookingID:    bookingID,
		FromStatuses: []entity.BookingStatus{entity.BookingStatusPending},
		OnlyUnpaid:   true,
		ChangedBy:    entity.ActorSystem,
		Reason:       bookings.ReasonPaymentTimeout,
		SeatReason:   entity.SeatReasonBookingExpired,
	})
	if err != nil {
		return false, fmt.Errorf("could not cancel expired booking %s: %w", bookingID, err)
	}

	logger := log.FromContext(ctx).WithField("booking_id", bookingID)
	if !cancelled {
		logger.Debug("Booking is not pending anymore, nothing to cancel")
		return false, nil
	}

	metrics.BookingsCancelled.WithLabelValues(bookings.ReasonPaymentTimeout).Inc()
	logger.Info("Cancelled unpaid booking")

	return true, nil
}

// HandleJob runs a cancellation job delivered by the router.
func (s *Scheduler) HandleJob(msg *message.Message) error {
	var payload jobPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("could not unmarshal cancellation job: %w", err)
	}
	if payload.BookingID == "" {
		return fmt.Errorf("cancellation job %s has no booking id", msg.UUID)
	}

	return s.CancelExpiredBooking(msg.Context(), payload.BookingID)
}

// PendingTimers reports how many fallback timers are armed.
func (s *Scheduler) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// Close stops every fallback timer that has not fired yet.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
