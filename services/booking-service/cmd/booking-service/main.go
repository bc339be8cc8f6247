package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/detailbook/detailbook/libs/auth"
	"github.com/detailbook/detailbook/libs/config"
	"github.com/detailbook/detailbook/libs/grpcx"
	"github.com/detailbook/detailbook/libs/httpx"
	"github.com/detailbook/detailbook/libs/kafkax"
	otelx "github.com/detailbook/detailbook/libs/otel"
	"github.com/detailbook/detailbook/libs/redisx"
	"github.com/detailbook/detailbook/libs/runtime"
	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/clients"
	"github.com/detailbook/detailbook/services/booking-service/internal/handlers"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
	"github.com/detailbook/detailbook/services/booking-service/internal/tenants"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
	"github.com/detailbook/detailbook/services/booking-service/internal/workflow"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	store, pool, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	if pool != nil {
		defer pool.Close()
	}

	rdb, err := openRedis(ctx)
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	notifyCfg := notify.Config{
		Email: buildEmailSender(),
		SMS:   buildSMSSender(logger),
	}
	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		publisher := notify.NewKafkaPublisher(brokers)
		defer func() { _ = publisher.Close() }()
		notifyCfg.Publisher = publisher
	}
	notifier := notify.NewService(store, logger, notifyCfg)

	intentParser, closeParser, err := buildParser(ctx, logger)
	if err != nil {
		logger.Error("parser init failed", "err", err)
		panic(err)
	}
	defer func() { _ = closeParser() }()

	tenantSvc := tenants.NewService(store)
	engine := availability.NewEngine(store)
	clientSvc := clients.NewService(store, logger)
	manager := bookings.NewManager(store, notifier, logger)
	threadSvc := threads.NewService(store)

	var locker workflow.Locker
	if rdb != nil {
		locker = workflow.NewRedisLocker(rdb, config.String("LOCK_PREFIX", "detailbook:lock"), config.Duration("LOCK_WAIT", 10*time.Second))
	}
	runner := workflow.NewEngine(workflow.Deps{
		Store:        store,
		Parser:       intentParser,
		Availability: engine,
		Clients:      clientSvc,
		Bookings:     manager,
		Notifier:     notifier,
		Threads:      threadSvc,
		Locker:       locker,
		Logger:       logger,
		Policy:       workflowPolicy(),
		LockTTL:      config.Duration("WORKFLOW_LOCK_TTL", workflow.DefaultLockTTL),
	})

	var (
		dispatcher workflow.Dispatcher
		inProcess  *workflow.InProcessDispatcher
		worker     *workflow.Worker
	)
	switch config.String("DISPATCHER", "inprocess") {
	case "asynq":
		if rdb == nil {
			logger.Error("asynq dispatcher requires REDIS_ADDR")
			panic("asynq dispatcher requires REDIS_ADDR")
		}
		redisOpt := asynq.RedisClientOpt{
			Addr:     config.String("REDIS_ADDR", ""),
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		}
		queue := config.String("WORKFLOW_QUEUE", "workflows")
		taskClient := asynq.NewClient(redisOpt)
		defer func() { _ = taskClient.Close() }()
		dispatcher = workflow.NewAsynqDispatcher(taskClient, queue)
		if config.Bool("WORKER_ENABLED", true) {
			worker = workflow.NewWorker(redisOpt, workflow.WorkerConfig{
				Concurrency: config.Int("WORKER_CONCURRENCY", 10),
				Queue:       queue,
			}, runner, logger)
			if err := worker.Start(); err != nil {
				logger.Error("workflow worker start failed", "err", err)
				panic(err)
			}
		}
	default:
		inProcess = workflow.NewInProcessDispatcher(ctx, runner, logger)
		dispatcher = inProcess
	}

	sweeper, err := workflow.NewSweeper(store, dispatcher, logger, workflow.SweeperConfig{
		Schedule:   config.String("SWEEP_SCHEDULE", "@every 1m"),
		StaleAfter: config.Duration("SWEEP_STALE_AFTER", 2*time.Minute),
		BatchSize:  config.Int("SWEEP_BATCH_SIZE", 100),
	})
	if err != nil {
		logger.Error("sweeper init failed", "err", err)
		panic(err)
	}
	sweeper.Start()

	readyChecks := []runtime.ReadyCheck{{Name: "store", Check: store.Ping}}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}
	if len(brokers) > 0 {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.Register(mux, handlers.Deps{
		Tenants:      tenantSvc,
		Availability: engine,
		Clients:      clientSvc,
		Bookings:     manager,
		Notifier:     notifier,
		Threads:      threadSvc,
		Workflows:    workflow.NewService(store, threadSvc, dispatcher, logger),
		Logger:       logger,
	})

	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	rateLimit := httpx.NewRateLimiter(limit, time.Minute).Middleware()
	if rdb != nil {
		rateLimit = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "detailbook:rl").Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	var authn httpx.Middleware
	if secret := config.String("AUTH_JWT_SECRET", ""); secret != "" {
		authn = auth.Middleware(secret, handlers.PublicPaths...)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set; trusting the X-Tenant-Id header")
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", httpx.TenantHeader, httpx.RequestIDHeader},
			MaxAge:         config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		authn,
		rateLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer(logger)
	grpcServer.SetServing(service, true)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcServer.Shutdown(shutdownCtx)
	sweeper.Stop(shutdownCtx)
	if worker != nil {
		worker.Shutdown()
	}
	if inProcess != nil {
		// Interrupted runs keep their step records and are picked up by the sweeper after restart.
		inProcess.Wait()
	}
	logger.Info("http server stopped")
}
