package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/lithammer/shortuuid/v3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/giaotrandev/booking-app-sub000/auth"
	"github.com/giaotrandev/booking-app-sub000/booking"
	"github.com/giaotrandev/booking-app-sub000/cancellation"
	"github.com/giaotrandev/booking-app-sub000/config"
	"github.com/giaotrandev/booking-app-sub000/db"
	"github.com/giaotrandev/booking-app-sub000/db/bookings"
	"github.com/giaotrandev/booking-app-sub000/db/datalake"
	"github.com/giaotrandev/booking-app-sub000/db/seats"
	"github.com/giaotrandev/booking-app-sub000/db/trips"
	"github.com/giaotrandev/booking-app-sub000/db/vouchers"
	"github.com/giaotrandev/booking-app-sub000/http"
	"github.com/giaotrandev/booking-app-sub000/jobs"
	"github.com/giaotrandev/booking-app-sub000/payment"
	"github.com/giaotrandev/booking-app-sub000/pubsub"
	"github.com/giaotrandev/booking-app-sub000/pubsub/bus"
	"github.com/giaotrandev/booking-app-sub000/pubsub/handlers/event"
	"github.com/giaotrandev/booking-app-sub000/pubsub/outbox"
	"github.com/giaotrandev/booking-app-sub000/realtime"
	"github.com/giaotrandev/booking-app-sub000/reservation"
	"github.com/giaotrandev/booking-app-sub000/tracing"
)

type Service struct {
	db              *sqlx.DB
	watermillRouter *message.Router
	forwarder       *forwarder.Forwarder
	dispatcher      *jobs.Dispatcher
	reservations    *reservation.Manager
	recoverer       *cancellation.Recoverer
	scheduler       *cancellation.Scheduler
	instanceGroups  *bus.InstanceGroups
	httpServer      *http.Server
}

func New(
	cfg config.Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	filesService event.FilesService,
	spreadsheetsService event.SpreadsheetsService,
) Service {
	tripsRepo := trips.NewPostgresRepository(db)
	seatsRepo := seats.NewPostgresRepository(db)
	vouchersRepo := vouchers.NewPostgresRepository(db)
	bookingsRepo := bookings.NewPostgresRepository(db, cfg.TransactionTimeout)
	dataLake := datalake.NewDataLake(db)

	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	redisPublisher, err := pubsub.NewRedisPublisher(redisClient, watermillLogger)
	if err != nil {
		panic(fmt.Errorf("failed to create redis publisher: %w", err))
	}
	redisPublisher = log.CorrelationPublisherDecorator{Publisher: redisPublisher}

	eventBus, err := bus.NewEventBus(redisPublisher)
	if err != nil {
		panic(fmt.Errorf("failed to create event bus: %w", err))
	}

	fwd, err := outbox.NewForwarder(db, redisPublisher, watermillLogger)
	if err != nil {
		panic(fmt.Errorf("failed to create outbox forwarder: %w", err))
	}

	jobsQueue := jobs.NewRedisQueue(redisClient)
	dispatcher := jobs.NewDispatcher(jobsQueue, redisPublisher, cfg.JobPollInterval)

	scheduler := cancellation.NewScheduler(jobsQueue, bookingsRepo, cfg.JobMaxAttempts)
	recoverer := cancellation.NewRecoverer(scheduler, cfg.RecoveryInterval)

	reservations := reservation.NewManager(
		reservation.NewRedisStore(redisClient),
		tripsRepo,
		seatsRepo,
		eventBus,
		reservation.Config{
			TTL:            cfg.ReservationTTL,
			SweepInterval:  cfg.SweepInterval,
			DefaultSeatCap: cfg.MaxSeatsPerBooking,
		},
	)

	engine := booking.NewEngine(
		tripsRepo,
		vouchersRepo,
		bookingsRepo,
		reservations,
		scheduler,
		payment.QRBuilder{
			BankAccount: cfg.BankAccount,
			BankCode:    cfg.BankCode,
			Template:    cfg.QRTemplate,
		},
		booking.Config{
			DefaultSeatCap: cfg.MaxSeatsPerBooking,
			PaymentTimeout: cfg.PaymentTimeout,
		},
	)

	reconciler := payment.NewReconciler(bookingsRepo, payment.Config{
		AmountTolerance: cfg.AmountTolerance(),
	})

	hub := realtime.NewHub(reservations)

	eventsHandler := event.NewHandler(hub, filesService, spreadsheetsService)

	// every instance must see every broadcast to reach its own websocket clients
	instanceGroups := bus.NewInstanceGroups(redisClient, shortuuid.New())

	newRedisSubscriber := func(consumerGroup string) (message.Subscriber, error) {
		return pubsub.NewRedisSubscriber(redisClient, consumerGroup, watermillLogger)
	}

	watermillRouter, err := pubsub.NewWatermillRouter(
		redisPublisher,
		newRedisSubscriber,
		eventsHandler,
		dataLake,
		scheduler,
		pubsub.RouterConfig{
			EventProcessorConfig: bus.NewEventProcessorConfig(redisClient, instanceGroups, watermillLogger),
			JobHandlerConfig: jobs.HandlerConfig{
				DefaultMaxAttempts: cfg.JobMaxAttempts,
				InitialInterval:    cfg.JobPollInterval,
				MaxInterval:        cfg.JobPollInterval * 10,
				Logger:             watermillLogger,
			},
		},
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	httpServer := http.NewServer(
		http.Config{
			Addr:          cfg.HTTPAddr,
			ServiceName:   tracing.ServiceName,
			WebhookAPIKey: cfg.PaymentWebhookAPIKey,
		},
		engine,
		tripsRepo,
		reservations,
		reconciler,
		auth.NewTokens(cfg.JWTSecret),
		hub,
	)

	return Service{
		db:              db,
		watermillRouter: watermillRouter,
		forwarder:       fwd,
		dispatcher:      dispatcher,
		reservations:    reservations,
		recoverer:       recoverer,
		scheduler:       scheduler,
		instanceGroups:  instanceGroups,
		httpServer:      httpServer,
	}
}

func (s Service) Run(ctx context.Context) error {
	if err := db.InitializeDatabaseSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		return s.forwarder.Run(ctx)
	})

	g.Go(func() error {
		return s.dispatcher.Run(ctx)
	})

	g.Go(func() error {
		return s.reservations.Run(ctx)
	})

	g.Go(func() error {
		<-s.watermillRouter.Running()
		return s.recoverer.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.scheduler.Close()
		return nil
	})

	g.Go(func() error {
		// the service is not healthy before the router is ready
		<-s.watermillRouter.Running()

		return s.httpServer.Run(ctx)
	})

	err := g.Wait()

	// the router is closed by now, nothing reads the per-instance groups anymore
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if destroyErr := s.instanceGroups.Destroy(cleanupCtx); destroyErr != nil {
		log.FromContext(cleanupCtx).WithError(destroyErr).Warn("Could not destroy instance consumer groups")
	}

	return err
}
