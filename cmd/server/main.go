// Command ifcoins-server starts the economy gRPC server and its HTTP gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/catalog"
	"github.com/and161185/ifcoins/internal/config"
	"github.com/and161185/ifcoins/internal/draw"
	"github.com/and161185/ifcoins/internal/limiter"
	"github.com/and161185/ifcoins/internal/migrate"
	"github.com/and161185/ifcoins/internal/repository"
	"github.com/and161185/ifcoins/internal/repository/memory"
	"github.com/and161185/ifcoins/internal/repository/postgres"
	grpcserver "github.com/and161185/ifcoins/internal/server/grpc"
	httpserver "github.com/and161185/ifcoins/internal/server/http"
	"github.com/and161185/ifcoins/internal/service"
	"github.com/and161185/ifcoins/internal/telemetry"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownGrace = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.GRPCAddr),
		zap.String("http", cfg.HTTPAddr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// openStore picks Postgres when a DSN is configured, the in-memory ledger otherwise.
func openStore(ctx context.Context, cfg config.Server, log *zap.Logger) (repository.Store, func(), error) {
	if cfg.DSN == "" {
		log.Warn("no dsn configured, using in-memory ledger")
		return memory.New(), func() {}, nil
	}
	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, db.Close, nil
}

func run(ctx context.Context, cfg config.Server, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, "ifcoins", version, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		catOpts []catalog.Option
		lim     limiter.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		catOpts = append(catOpts, catalog.WithCache(catalog.NewRedisCache(rdb, cfg.CatalogTTL)))
		lim = limiter.NewRedis(rdb, cfg.RateLimit, cfg.RateWindow)
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}
	cat := catalog.New(store, logger, catOpts...)

	src, err := draw.NewSource()
	if err != nil {
		return err
	}
	engine, err := draw.New(src, draw.DefaultWeights)
	if err != nil {
		return err
	}

	policy := cfg.Retry()
	admin := service.NewAdminService(store, cat, policy, logger)
	svc := service.Services{
		Purchases: service.NewPurchaseService(store, cat, engine, policy, cfg.PackSize, logger),
		Trades:    service.NewTradeService(store, policy, logger),
		Rewards:   service.NewRewardService(store, policy, logger),
		Admin:     admin,
		Queries:   service.NewQueryService(store, cat),
	}
	if cfg.AdminID != "" {
		if err := admin.EnsureAdmin(ctx, cfg.AdminID, cfg.AdminName, cfg.AdminEmail); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}
	tokens := auth.NewTokens([]byte(cfg.JWTKey), cfg.AccessTTL)

	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(tokens),
			grpcserver.RateLimitUnary(lim, logger),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(opts...)
	grpcserver.RegisterEconomyServer(gs, grpcserver.New(svc))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- gs.Serve(lis)
	}()

	var hsrv *http.Server
	if cfg.HTTPAddr != "" {
		if !cfg.Dev {
			gin.SetMode(gin.ReleaseMode)
		}
		hsrv = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: httpserver.NewRouter(svc, httpserver.Options{
				Tokens: tokens, Limiter: lim, Origins: cfg.Origins, Log: logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
			if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	hs.Shutdown()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if hsrv != nil {
		_ = hsrv.Shutdown(sctx)
	}
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-sctx.Done():
		gs.Stop()
	}
	return serveErr
}
