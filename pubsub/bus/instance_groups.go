package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// InstanceGroups tracks the consumer groups that belong to a single running
// instance. They are useless once the instance stops, so Destroy removes them
// from their streams on shutdown.
type InstanceGroups struct {
	client     *redis.Client
	instanceID string

	mu     sync.Mutex
	groups map[string]string // consumer group -> stream
}

func NewInstanceGroups(client *redis.Client, instanceID string) *InstanceGroups {
	if client == nil {
		panic("redis client must be set")
	}
	if instanceID == "" {
		panic("instance id must be set")
	}

	return &InstanceGroups{
		client:     client,
		instanceID: instanceID,
		groups:     map[string]string{},
	}
}

// Group returns the instance's consumer group for handlerName reading stream.
func (g *InstanceGroups) Group(stream, handlerName string) string {
	group := ServiceName + "." + handlerName + "." + g.instanceID

	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[group] = stream

	return group
}

func (g *InstanceGroups) Destroy(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for group, stream := range g.groups {
		if err := g.client.XGroupDestroy(ctx, stream, group).Err(); err != nil && !errors.Is(err, redis.Nil) {
			errs = append(errs, fmt.Errorf("could not destroy consumer group %s on %s: %w", group, stream, err))
			continue
		}
		delete(g.groups, group)
	}

	return errors.Join(errs...)
}
