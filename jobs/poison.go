package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
)

type PoisonedJob struct {
	StreamID string
	Job      Job
	Reason   string
	Handler  string
}

// PoisonQueue inspects jobs that exhausted their attempts.
type PoisonQueue struct {
	rdb       *redis.Client
	queue     *RedisQueue
	unmarshal redisstream.DefaultMarshallerUnmarshaller
}

func NewPoisonQueue(rdb *redis.Client, queue *RedisQueue) *PoisonQueue {
	if rdb == nil {
		panic("redis client must be set")
	}
	if queue == nil {
		panic("queue must be set")
	}

	return &PoisonQueue{rdb: rdb, queue: queue}
}

func (p *PoisonQueue) Preview(ctx context.Context) ([]PoisonedJob, error) {
	entries, err := p.rdb.XRange(ctx, PoisonTopic, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("could not read poison queue: %w", err)
	}

	jobs := make([]PoisonedJob, 0, len(entries))
	for _, entry := range entries {
		job, err := p.decode(entry)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (p *PoisonQueue) Remove(ctx context.Context, jobID string) error {
	job, err := p.find(ctx, jobID)
	if err != nil {
		return err
	}

	return p.rdb.XDel(ctx, PoisonTopic, job.StreamID).Err()
}

// Requeue schedules the job to run again right away with a fresh set of attempts.
func (p *PoisonQueue) Requeue(ctx context.Context, jobID string) error {
	job, err := p.find(ctx, jobID)
	if err != nil {
		return err
	}

	job.Job.RunAt = time.Now()
	if err := p.queue.Enqueue(ctx, job.Job); err != nil {
		return err
	}

	return p.rdb.XDel(ctx, PoisonTopic, job.StreamID).Err()
}

func (p *PoisonQueue) find(ctx context.Context, jobID string) (PoisonedJob, error) {
	jobs, err := p.Preview(ctx)
	if err != nil {
		return PoisonedJob{}, err
	}

	for _, job := range jobs {
		if job.Job.ID == jobID {
			return job, nil
		}
	}

	return PoisonedJob{}, fmt.Errorf("job %s not found in poison queue", jobID)
}

func (p *PoisonQueue) decode(entry redis.XMessage) (PoisonedJob, error) {
	msg, err := p.unmarshal.Unmarshal(entry.Values)
	if err != nil {
		return PoisonedJob{}, fmt.Errorf("could not unmarshal poisoned message %s: %w", entry.ID, err)
	}

	job := Job{
		ID:          msg.Metadata.Get(metadataJobID),
		Type:        msg.Metadata.Get(metadataJobType),
		Payload:     []byte(msg.Payload),
		MaxAttempts: MaxAttempts(msg, 0),
	}
	if job.ID == "" {
		job.ID = msg.UUID
	}

	return PoisonedJob{
		StreamID: entry.ID,
		Job:      job,
		Reason:   msg.Metadata.Get(middleware.ReasonForPoisonedKey),
		Handler:  msg.Metadata.Get(middleware.PoisonedHandlerKey),
	}, nil
}
