package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jcmexdev/storefront-sagas/internal/api-gateway/infra/httpx"
	"github.com/jcmexdev/storefront-sagas/internal/bootstrap"
	"github.com/jcmexdev/storefront-sagas/internal/config"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $STOREFRONT_CONFIG)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.Log.Level, cfg.Log.JSON)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("storefront-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTel.Endpoint,
		Enabled:     cfg.OTel.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	handler := httpx.NewHandler(httpx.Services{
		Orders:     app.Orders,
		Payments:   app.Payments,
		Refunds:    app.Refunds,
		Reconciler: app.Reconciler,
		Sweeper:    app.Scheduler,
	}, cfg.FrontendURL, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(handler, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(interceptors.UnaryServerInterceptor(logger)),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	stopScheduler := app.Scheduler.Start(ctx)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("admin gRPC running", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("storefront API running", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
	}

	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("http shutdown error", "error", serr)
	}
	grpcServer.GracefulStop()
	stopScheduler()
	return err
}
