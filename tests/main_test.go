package tests

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/giaotrandev/booking-app-sub000/db"
)

// Both can point at already running infrastructure, otherwise containers are started.
var (
	postgresURL = os.Getenv("POSTGRES_URL")
	redisURL    = os.Getenv("REDIS_ADDR")
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	logger := log.FromContext(ctx)

	var containers []testcontainers.Container
	defer func() {
		for _, c := range containers {
			if err := c.Terminate(ctx); err != nil {
				logger.WithError(err).Warn("Could not terminate container")
			}
		}
	}()

	if postgresURL == "" {
		container, url := db.StartPostgresContainer()
		containers = append(containers, container)
		postgresURL = url
	}

	if redisURL == "" {
		container, addr, err := startRedisContainer(ctx)
		if err != nil {
			logger.WithError(err).Error("Could not start redis")
			return 1
		}
		containers = append(containers, container)
		redisURL = addr
	}

	if err := initializeSchema(); err != nil {
		logger.WithError(err).Error("Could not initialize database schema")
		return 1
	}

	return m.Run()
}

func initializeSchema() error {
	dbConn, err := sqlx.Connect("postgres", postgresURL)
	if err != nil {
		return fmt.Errorf("could not connect to postgres: %w", err)
	}
	defer dbConn.Close()

	return db.InitializeDatabaseSchema(dbConn)
}

func startRedisContainer(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := redis.RunContainer(ctx, testcontainers.WithImage("docker.io/redis:7"))
	if err != nil {
		return nil, "", err
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}

	return container, strings.TrimPrefix(uri, "redis://"), nil
}
