package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"escrow-service/internal/cache"
	"escrow-service/internal/config"
	hrest "escrow-service/internal/handler/rest"
	"escrow-service/internal/pub"
	"escrow-service/internal/repository"
	"escrow-service/internal/repository/memory"
	"escrow-service/internal/repository/postgres"
	"escrow-service/internal/router"
	"escrow-service/internal/usecase/escrow"
	"escrow-service/internal/usecase/wallet"
	"escrow-service/internal/worker"
	"escrow-service/shared/auth/middleware"
	"escrow-service/shared/auth/pkg/jwtutil"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

// NewHTTPServer applies the service's HTTP timeouts to handler.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
}

// Run wires the service and blocks until ctx is cancelled or a component
// fails. It owns every connection it opens.
func Run(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) error {
	logger.Info("starting escrow service",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("store", cfg.StoreDriver))

	// --- Store ---
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// --- Redis (optional) ---
	rdb := config.ConnectRedis(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	// --- Events ---
	queue := pub.NewQueue(cfg.EventQueueSize, logger)
	notifier := pub.NewNotifier(logger)
	sinks := []pub.Sink{notifier}
	if rdb != nil {
		sinks = append(sinks, pub.NewRedisSink(rdb))
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer := pub.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer writer.Close()
		sinks = append(sinks, pub.NewKafkaSink(writer, logger))
		logger.Info("kafka sink enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	dispatcher := pub.NewDispatcher(queue, logger, sinks...)

	// --- Usecases ---
	var walletCache wallet.Cache
	if rdb != nil {
		walletCache = cache.NewWalletCache(rdb, cfg.BalanceCacheTTL, logger)
	}
	walletUC := wallet.NewService(store, walletCache, queue, wallet.Config{
		Currency:        cfg.PlatformCurrency,
		PlatformOwnerID: cfg.PlatformOwnerID,
	}, logger)
	if _, err := walletUC.EnsurePlatformWallet(ctx); err != nil {
		return fmt.Errorf("platform wallet: %w", err)
	}
	escrowUC := escrow.NewService(store, walletUC, queue, escrow.Config{
		Currency:       cfg.PlatformCurrency,
		FeeBasisPoints: cfg.FeeBasisPoints,
	}, logger)

	// --- HTTP ---
	auth, err := middleware.RequireAuth(jwtutil.JWTConfig{
		PubPath:  cfg.JWTPublicKey,
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}, logger)
	if err != nil {
		return err
	}
	handler := hrest.NewEscrowRestHandler(escrowUC, walletUC, notifier, logger)
	mux := router.SetupRoutes(chi.NewRouter(), handler, auth, rdb, router.Options{
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow,
		RateBlock:   cfg.RateBlock,
	}, logger)
	httpSrv := NewHTTPServer(cfg.HTTPAddr, mux)

	// --- gRPC ---
	hs := health.NewServer()
	grpcSrv := NewGRPCServer(hs)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	reconciler := worker.NewReconciler(walletUC, cfg.ReconcileCron, 5*time.Minute, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hs.SetServingStatus(EscrowServiceName, healthpb.HealthCheckResponse_SERVING)
		logger.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hs.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("escrow service stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (repository.Store, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(cfg.LockTimeout, logger), nil
	}
	pool, err := config.ConnectDB(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	store := postgres.NewStore(pool, cfg.LockTimeout, logger)
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}
