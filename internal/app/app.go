// Package app собирает storefront: хранилища корзин, клиентов внешних
// сервисов, HTTP и gRPC API, outbox-воркер и сервер метрик.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/spraynsniff/storefront/internal/backend"
	"github.com/spraynsniff/storefront/internal/cart"
	"github.com/spraynsniff/storefront/internal/checkout"
	healthcheck "github.com/spraynsniff/storefront/internal/health"
	"github.com/spraynsniff/storefront/internal/httpapi"
	"github.com/spraynsniff/storefront/internal/metrics"
	"github.com/spraynsniff/storefront/internal/notify"
	grpcsvc "github.com/spraynsniff/storefront/internal/service/grpc"
	"github.com/spraynsniff/storefront/internal/storage/file"
	"github.com/spraynsniff/storefront/internal/submissions"
	"github.com/spraynsniff/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx или ошибки gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	cartMetrics := metrics.NewCartMetrics()
	broadcaster := notify.NewBroadcaster()
	defer broadcaster.Close()
	notifier := notify.Multi{notify.NewLogNotifier(logger.WithField("layer", "notify")), broadcaster}

	// Без Kafka события корзин копятся только в postgres: в памяти их некому забрать.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	cartOptions := []cart.Option{
		cart.WithLogger(logger.WithField("layer", "cart")),
		cart.WithServiceNotifier(notifier),
		cart.WithMetrics(cartMetrics),
	}
	if kafkaProducer != nil || cfg.StorageDriver == StorageDriverPostgres {
		cartOptions = append(cartOptions, cart.WithOutbox(deps.outboxRepo))
	}
	carts := cart.NewService(deps.snapshots, cartOptions...)

	var outboxCancel context.CancelFunc
	var outboxDone <-chan struct{}
	if kafkaProducer != nil {
		outboxCancel, outboxDone = startOutboxWorker(ctx, cfg, deps.outboxRepo, kafkaProducer, logger)
	}

	if deps.fileDir != "" && cfg.FileWatch {
		watcher, err := file.NewWatcher(deps.fileDir, func(ctx context.Context, cartID string) {
			if carts.Reload(ctx, cartID) {
				logger.WithField("cart_id", cartID).Info("cart reloaded from snapshot file")
			}
		}, file.WithWatcherLogger(logger.WithField("layer", "watcher")))
		if err != nil {
			logger.WithError(err).Warn("snapshot watcher disabled")
		} else if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("snapshot watcher disabled")
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	apiClient, err := backend.New(cfg.APIURL,
		backend.WithTimeout(cfg.APITimeout),
		backend.WithNotifier(notifier),
		backend.WithLogger(logger.WithField("layer", "backend")),
		backend.WithMetrics(cartMetrics),
	)
	if err != nil {
		shutdownOutboxWorker(outboxCancel, outboxDone, logger)
		closeKafkaProducer(kafkaProducer, logger)
		return err
	}
	checkoutSvc := checkout.NewService(carts, apiClient, cartMetrics, logger.WithField("layer", "checkout"))

	var submissionsHandler http.Handler
	if cfg.SubmissionsURL != "" {
		subClient, err := submissions.NewClient(cfg.SubmissionsURL,
			submissions.WithLogger(logger.WithField("layer", "submissions")),
			submissions.WithMetrics(cartMetrics),
		)
		if err != nil {
			logger.WithError(err).Warn("submissions proxy disabled")
		} else {
			submissionsHandler = submissions.NewHandler(subClient, logger.WithField("layer", "submissions"))
		}
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Carts:         carts,
		Checkout:      checkoutSvc,
		Notifications: broadcaster,
		Submissions:   submissionsHandler,
		Logger:        logger.WithField("layer", "http"),
	})
	apiSrv := startHTTPServer(ctx, cfg.HTTPAddr, router, logger, broadcaster.Close)

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcsvc.RegisterCartServiceServer(grpcServer, grpcsvc.NewCartService(carts, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("snapshots", deps.storageChecker)
	if kafkaProducer != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NewOptionalChecker("outbox", func() error {
			_, err := deps.outboxRepo.Stats()
			return err
		}))
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		shutdownOutboxWorker(outboxCancel, outboxDone, logger)
		closeKafkaProducer(kafkaProducer, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		shutdownOutboxWorker(outboxCancel, outboxDone, logger)
		closeKafkaProducer(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		shutdownOutboxWorker(outboxCancel, outboxDone, logger)
		closeKafkaProducer(kafkaProducer, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// startHTTPServer запускает HTTP API корзин. onShutdown вызываются в начале
// остановки сервера: так закрываются долгие SSE-потоки, которых Shutdown не дождётся.
func startHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *log.Entry, onShutdown ...func()) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	for _, fn := range onShutdown {
		srv.RegisterOnShutdown(fn)
	}
	go func() {
		logger.Infof("HTTP API слушает %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http api server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()
	return srv
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
