package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/giaotrandev/booking-app-sub000/config"
	"github.com/giaotrandev/booking-app-sub000/gateway"
	"github.com/giaotrandev/booking-app-sub000/pubsub"
	"github.com/giaotrandev/booking-app-sub000/service"
	"github.com/giaotrandev/booking-app-sub000/tracing"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	log.Init(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	traceProvider, err := tracing.ConfigureTraceProvider(cfg.JaegerEndpoint)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := traceProvider.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("Could not shutdown trace provider")
		}
	}()

	traceDB, err := otelsql.Open("postgres", cfg.PostgresURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithDBName("db"),
	)
	if err != nil {
		panic(err)
	}

	db := sqlx.NewDb(traceDB, "postgres")
	defer db.Close()

	redisClient := pubsub.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()

	apiClients, err := gateway.NewClients(cfg.NotificationsURL)
	if err != nil {
		panic(err)
	}

	err = service.New(
		cfg,
		db,
		redisClient,
		gateway.NewFilesClient(apiClients),
		gateway.NewSpreadsheetsClient(apiClients),
	).Run(ctx)
	if err != nil {
		panic(err)
	}
}
