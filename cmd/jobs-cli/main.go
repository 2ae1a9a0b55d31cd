package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/giaotrandev/booking-app-sub000/jobs"
	"github.com/giaotrandev/booking-app-sub000/pubsub"
)

type Handler struct {
	rdb    *redis.Client
	queue  *jobs.RedisQueue
	poison *jobs.PoisonQueue
}

func NewHandler(redisAddr string) *Handler {
	rdb := pubsub.NewRedisClient(redisAddr)
	queue := jobs.NewRedisQueue(rdb)

	return &Handler{
		rdb:    rdb,
		queue:  queue,
		poison: jobs.NewPoisonQueue(rdb, queue),
	}
}

func (h *Handler) Close() error {
	return h.rdb.Close()
}

func withHandler(fn func(c *cli.Context, h *Handler) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		h := NewHandler(c.String("redis-addr"))
		defer h.Close()

		return fn(c, h)
	}
}

func requireJobID(c *cli.Context) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", cli.Exit("missing <job_id>", 1)
	}
	return id, nil
}

func main() {
	app := &cli.App{
		Name:  "jobs-cli",
		Usage: "Inspect delayed and poisoned jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				EnvVars: []string{"REDIS_ADDR"},
				Value:   "localhost:6379",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "pending",
				Usage: "list delayed jobs by run time",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100},
				},
				Action: withHandler(func(c *cli.Context, h *Handler) error {
					pending, err := h.queue.Pending(c.Context, c.Int("limit"))
					if err != nil {
						return err
					}

					for _, j := range pending {
						fmt.Printf("%v\t%v\t%v\n", j.ID, j.Type, j.RunAt.Format(time.RFC3339))
					}

					return nil
				}),
			},
			{
				Name:  "preview",
				Usage: "preview poisoned jobs",
				Action: withHandler(func(c *cli.Context, h *Handler) error {
					poisoned, err := h.poison.Preview(c.Context)
					if err != nil {
						return err
					}

					for _, p := range poisoned {
						fmt.Printf("%v\t%v\t%v\t%v\n", p.Job.ID, p.Job.Type, p.Handler, p.Reason)
					}

					return nil
				}),
			},
			{
				Name:      "remove",
				ArgsUsage: "<job_id>",
				Usage:     "remove a poisoned job",
				Action: withHandler(func(c *cli.Context, h *Handler) error {
					id, err := requireJobID(c)
					if err != nil {
						return err
					}

					return h.poison.Remove(c.Context, id)
				}),
			},
			{
				Name:      "requeue",
				ArgsUsage: "<job_id>",
				Usage:     "run a poisoned job again",
				Action: withHandler(func(c *cli.Context, h *Handler) error {
					id, err := requireJobID(c)
					if err != nil {
						return err
					}

					return h.poison.Requeue(c.Context, id)
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
