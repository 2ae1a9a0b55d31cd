package reservation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

// MemoryStore keeps claims in process memory. It is meant for single instance
// deployments and tests.
type MemoryStore struct {
	mu     sync.Mutex
	bySeat map[string]entity.Reservation
	byUser map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySeat: make(map[string]entity.Reservation),
		byUser: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Reserve(_ context.Context, r entity.Reservation, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := seatKey(r.TripID, r.SeatID)
	if _, ok := s.bySeat[sk]; ok {
		return ErrSeatClaimed
	}

	uk := userKey(r.UserID, r.TripID)
	if len(s.byUser[uk]) >= limit {
		return entity.ErrClaimLimitExceeded
	}

	s.bySeat[sk] = r
	if s.byUser[uk] == nil {
		s.byUser[uk] = make(map[string]struct{})
	}
	s.byUser[uk][r.SeatID] = struct{}{}

	return nil
}

func (s *MemoryStore) Get(_ context.Context, tripID, seatID string) (entity.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.bySeat[seatKey(tripID, seatID)]
	return r, ok, nil
}

func (s *MemoryStore) Remove(_ context.Context, r entity.Reservation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := seatKey(r.TripID, r.SeatID)
	current, ok := s.bySeat[sk]
	if !ok || current.ID != r.ID {
		return false, nil
	}

	delete(s.bySeat, sk)

	uk := userKey(current.UserID, current.TripID)
	delete(s.byUser[uk], current.SeatID)
	if len(s.byUser[uk]) == 0 {
		delete(s.byUser, uk)
	}

	return true, nil
}

func (s *MemoryStore) Expired(_ context.Context, now time.Time, limit int) ([]entity.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []entity.Reservation
	for _, r := range s.bySeat {
		if r.Expired(now) {
			expired = append(expired, r)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpireAt.Before(expired[j].ExpireAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}

	return expired, nil
}
