package reservation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

// Keys share the {reservations} hash tag so the scripts stay on one cluster slot.
const (
	seatsKey  = "{reservations}:seats"
	expiryKey = "{reservations}:expiry"
)

func userSetKey(userID, tripID string) string {
	return "{reservations}:user:" + userKey(userID, tripID)
}

var reserveScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	return -1
end
if redis.call('SCARD', KEYS[3]) >= tonumber(ARGV[4]) then
	return -2
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[5])
return 1
`)

var removeScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if not current then
	return 0
end
if cjson.decode(current)['id'] ~= ARGV[2] then
	return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('SREM', KEYS[3], ARGV[3])
return 1
`)

// RedisStore shares claims between every instance of the service.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	if rdb == nil {
		panic("redis client must be set")
	}

	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Reserve(ctx context.Context, r entity.Reservation, limit int) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("could not marshal reservation: %w", err)
	}

	res, err := reserveScript.Run(
		ctx,
		s.rdb,
		[]string{seatsKey, expiryKey, userSetKey(r.UserID, r.TripID)},
		seatKey(r.TripID, r.SeatID),
		payload,
		r.ExpireAt.UnixMilli(),
		limit,
		r.SeatID,
	).Int()
	if err != nil {
		return fmt.Errorf("could not store reservation: %w", err)
	}

	switch res {
	case -1:
		return ErrSeatClaimed
	case -2:
		return entity.ErrClaimLimitExceeded
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, tripID, seatID string) (entity.Reservation, bool, error) {
	payload, err := s.rdb.HGet(ctx, seatsKey, seatKey(tripID, seatID)).Bytes()
	if err == redis.Nil {
		return entity.Reservation{}, false, nil
	}
	if err != nil {
		return entity.Reservation{}, false, fmt.Errorf("could not get reservation: %w", err)
	}

	var r entity.Reservation
	if err := json.Unmarshal(payload, &r); err != nil {
		return entity.Reservation{}, false, fmt.Errorf("could not unmarshal reservation: %w", err)
	}

	return r, true, nil
}

func (s *RedisStore) Remove(ctx context.Context, r entity.Reservation) (bool, error) {
	res, err := removeScript.Run(
		ctx,
		s.rdb,
		[]string{seatsKey, expiryKey, userSetKey(r.UserID, r.TripID)},
		seatKey(r.TripID, r.SeatID),
		r.ID,
		r.SeatID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("could not remove reservation: %w", err)
	}

	return res == 1, nil
}

func (s *RedisStore) Expired(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error) {
	fields, err := s.rdb.ZRangeByScore(ctx, expiryKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("could not list expired reservations: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	values, err := s.rdb.HMGet(ctx, seatsKey, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("could not get expired reservations: %w", err)
	}

	expired := make([]entity.Reservation, 0, len(values))
	for _, v := range values {
		payload, ok := v.(string)
		if !ok {
			// removed between the two reads
			continue
		}

		var r entity.Reservation
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("could not unmarshal reservation: %w", err)
		}
		expired = append(expired, r)
	}

	return expired, nil
}
