package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/shipping"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const grpcStopTimeout = 5 * time.Second

// services: собранное ядро витрины.
type services struct {
	carts    *cart.Service
	previews *checkout.Service
	orders   *lifecycle.Service
	api      *grpcsvc.StorefrontService
}

func buildServices(cfg Config, deps *runtimeDependencies, collab *collaborators, m *metrics.StorefrontMetrics, logger *log.Entry) *services {
	estimator := shipping.NewEstimator(collab.locator, collab.options, shippingRates(cfg), logger.WithField("component", "shipping"))

	carts := cart.NewService(deps.cartRepo, collab.catalog,
		cart.WithMetrics(m),
		cart.WithLogger(logger.WithField("component", "cart")),
	)
	builder := checkout.NewBuilder(collab.catalog, collab.discounts, collab.vouchers, estimator, nil,
		checkout.WithMetrics(m),
		checkout.WithLogger(logger.WithField("component", "checkout")),
	)
	previews := checkout.NewService(carts, builder,
		checkout.WithDebounce(cfg.PreviewDebounce),
		checkout.WithRecomputeTimeout(cfg.PreviewTimeout),
		checkout.WithServiceLogger(logger.WithField("component", "checkout-preview")),
	)
	carts.SetListener(previews)

	orders := lifecycle.NewService(deps.repo, deps.outboxRepo, deps.timelineRepo, collab.gateway,
		lifecycle.WithAdminGateway(collab.admin),
		lifecycle.WithPlacement(previews, carts, collab.vouchers),
		lifecycle.WithPaymentWindow(cfg.PaymentWindow),
		lifecycle.WithMetrics(m),
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
	)

	api := grpcsvc.NewStorefrontService(carts, previews, orders, deps.idempotencyRepo, logger.WithField("layer", "grpc"))
	return &services{carts: carts, previews: previews, orders: orders, api: api}
}

// Run поднимает витрину и блокируется до отмены ctx или ошибки gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	storefrontMetrics := metrics.NewStorefrontMetrics()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := deps.closeFn(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close storage")
		}
	}()

	collab, err := initCollaborators(cfg, storefrontMetrics, logger)
	if err != nil {
		return err
	}

	svc := buildServices(cfg, deps, collab, storefrontMetrics, logger)
	defer svc.previews.Close()

	kafkaRT := initKafka(cfg, svc.orders, logger)
	defer kafkaRT.close(logger)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	workersDone := startWorkers(workersCtx, cfg, deps, collab, kafkaRT, storefrontMetrics, logger)
	defer shutdownWorkers(stopWorkers, workersDone, logger)
	kafkaRT.start(workersCtx, logger)

	healthHandler := newHealthHandler(cfg, deps, collab)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	grpcServer, grpcHealth := newGRPCServer(svc.api, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{"addr": cfg.GRPCAddr, "version": version.GetVersion()}).Info("gRPC server listening")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gRPC server")
		grpcHealth.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(grpcStopTimeout):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func newGRPCServer(api storefrontv1.StorefrontServiceServer, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcMetrics.UnaryServerInterceptor(),
			grpcsvc.AccessTokenInterceptor(),
		),
	)
	storefrontv1.RegisterStorefrontServiceServer(server, api)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(storefrontv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

func newHealthHandler(cfg Config, deps *runtimeDependencies, collab *collaborators) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		h.RegisterChecker("postgres", deps.storageChecker)
	}
	if deps.cartChecker != nil {
		h.RegisterChecker("redis", deps.cartChecker)
	}
	if collab.checker != nil {
		h.RegisterChecker("backend", collab.checker)
	}
	h.RegisterChecker("outbox", healthcheck.NewOptionalChecker("outbox", outboxBacklogCheck(deps.outboxRepo, cfg.OutboxMaxPending)))
	return h
}

// outboxBacklogCheck сообщает о переполненной очереди outbox.
func outboxBacklogCheck(repo domain.OutboxRepository, maxPending int) func(context.Context) error {
	return func(context.Context) error {
		stats, err := repo.Stats()
		if err != nil {
			return err
		}
		if maxPending > 0 && stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	}
}

// startWorkers запускает фоновые задачи; канал закрывается, когда все завершились.
func startWorkers(
	ctx context.Context,
	cfg Config,
	deps *runtimeDependencies,
	collab *collaborators,
	kafkaRT *kafkaRuntime,
	m *metrics.StorefrontMetrics,
	logger *log.Entry,
) <-chan struct{} {
	outboxOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(m),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if kafkaRT.dlqPublisher != nil {
		outboxOptions = append(outboxOptions, outbox.WithDLQPublisher(kafkaRT.dlqPublisher))
	}
	outboxWorker := outbox.NewWorker(deps.outboxRepo, kafkaRT.publisher, outboxOptions...)

	sweeper := idempotency.NewSweeper(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-sweeper")),
		idempotency.WithMetrics(m),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	run(outboxWorker.Run)
	run(sweeper.Run)
	if collab.background != nil {
		run(collab.background)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// shutdownWorkers отменяет фоновые задачи и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(grpcStopTimeout):
		logger.Warn("background workers did not stop in time")
	}
}
