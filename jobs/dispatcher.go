package jobs

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

const dispatchBatchSize = 100

// Dispatcher publishes due jobs to their stream.
type Dispatcher struct {
	queue        *RedisQueue
	publisher    message.Publisher
	pollInterval time.Duration

	now func() time.Time
}

func NewDispatcher(queue *RedisQueue, publisher message.Publisher, pollInterval time.Duration) *Dispatcher {
	if queue == nil {
		panic("queue must be set")
	}
	if publisher == nil {
		panic("publisher must be set")
	}
	if pollInterval <= 0 {
		panic("poll interval must be positive")
	}

	return &Dispatcher{
		queue:        queue,
		publisher:    publisher,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.DispatchDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.FromContext(ctx).WithError(err).Error("Could not dispatch due jobs")
			}
		}
	}
}

// DispatchDue publishes every job whose run time has come. A job that cannot be
// published goes back to the queue.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	dispatched := 0
	for {
		jobs, err := d.queue.claimDue(ctx, d.now(), dispatchBatchSize)
		if err != nil {
			return dispatched, err
		}

		for _, job := range jobs {
			if err := d.publish(ctx, job); err != nil {
				logger := log.FromContext(ctx).WithError(err).WithFields(logrus.Fields{
					"job_id":   job.ID,
					"job_type": job.Type,
				})
				logger.Warn("Could not publish job, putting it back")

				if err := d.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
					logger.WithError(err).Error("Could not requeue job, it is lost")
				}
				continue
			}
			dispatched++
		}

		if len(jobs) < dispatchBatchSize {
			return dispatched, nil
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, job Job) error {
	msg := message.NewMessage(job.ID, []byte(job.Payload))
	msg.Metadata.Set(metadataJobID, job.ID)
	msg.Metadata.Set(metadataJobType, job.Type)
	msg.Metadata.Set(metadataMaxAttempts, strconv.Itoa(job.MaxAttempts))
	msg.SetContext(ctx)

	return d.publisher.Publish(Topic(job.Type), msg)
}
