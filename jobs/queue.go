// Package jobs runs units of work at a future time with at-least-once delivery.
//
// Delayed jobs wait in a Redis sorted set scored by their run time. The
// Dispatcher moves due jobs to a per-type Redis stream, where router handlers
// process them with bounded retries and a poison queue.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	delayedKey = "jobs:delayed"

	// PoisonTopic receives jobs that failed on every attempt.
	PoisonTopic = "jobs.poison"

	metadataJobID       = "job_id"
	metadataJobType     = "job_type"
	metadataMaxAttempts = "max_attempts"
)

func Topic(jobType string) string {
	return "jobs." + jobType
}

type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	RunAt       time.Time       `json:"run_at"`
	MaxAttempts int             `json:"max_attempts"`
}

type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	if rdb == nil {
		panic("redis client must be set")
	}

	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.Type == "" {
		return fmt.Errorf("job type is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("could not marshal job: %w", err)
	}

	err = q.rdb.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(job.RunAt.UnixMilli()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("could not enqueue %s job: %w", job.Type, err)
	}

	return nil
}

// Pending lists up to limit jobs that wait for their run time, earliest first.
func (q *RedisQueue) Pending(ctx context.Context, limit int) ([]Job, error) {
	members, err := q.rdb.ZRange(ctx, delayedKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("could not list pending jobs: %w", err)
	}

	return decodeJobs(members)
}

// claimDue removes due jobs from the queue. Only the caller whose ZREM succeeds
// owns a job, so several dispatchers can poll the same queue.
func (q *RedisQueue) claimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	members, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("could not list due jobs: %w", err)
	}

	var claimed []string
	for _, member := range members {
		removed, err := q.rdb.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return nil, fmt.Errorf("could not claim job: %w", err)
		}
		if removed == 1 {
			claimed = append(claimed, member)
		}
	}

	return decodeJobs(claimed)
}

func decodeJobs(members []string) ([]Job, error) {
	jobs := make([]Job, 0, len(members))
	for _, member := range members {
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			return nil, fmt.Errorf("could not unmarshal job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}
