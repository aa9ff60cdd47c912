package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"goreels/internal/common"
	"goreels/internal/di"
	"goreels/internal/logging"
	"goreels/internal/store"
)

const (
	serviceName     = "goreels.v1.Reels"
	healthInterval  = 15 * time.Second
	shutdownTimeout = 20 * time.Second
	cleanupBatch    = 500
)

func main() {
	cfg := di.ProvideConfig()
	logging.Info().Str("env", cfg.Server.Environment).Msg("starting reels service")

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("failed to initialize reels service")
	}
	defer cleanup()

	router := app.Router()
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		common.RequestIDInterceptor(),
		common.LoggingInterceptor(),
	))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Str("port", cfg.Server.GRPCPort).Msg("failed to listen")
	}

	go func() {
		logging.Info().Str("addr", httpServer.Addr).Msg("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger := logging.Logger()
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	go func() {
		logging.Info().Str("port", cfg.Server.GRPCPort).Msg("gRPC health listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger := logging.Logger()
			logger.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	ctx, stop := context.WithCancel(context.Background())
	var background sync.WaitGroup
	run := func(fn func()) {
		background.Add(1)
		go func() {
			defer background.Done()
			fn()
		}()
	}

	run(func() { watchHealth(ctx, app.Store, healthServer) })
	run(func() { app.Pipeline.Schedule(ctx, cfg.Reconcile.SweepInterval) })
	run(func() {
		every(ctx, cfg.Ledger.CleanupInterval, func(ctx context.Context) {
			rep, err := app.Ledger.RetryCleanups(ctx, cleanupBatch)
			if err != nil {
				logging.Warn().Err(err).Msg("cleanup retry failed")
				return
			}
			if rep.Resolved > 0 || rep.Failed > 0 {
				logging.Info().Int("resolved", rep.Resolved).Int("failed", rep.Failed).Msg("cleanup retry finished")
			}
		})
	})
	run(func() {
		every(ctx, cfg.Ledger.RecountInterval, func(ctx context.Context) {
			if _, err := app.Ledger.Recount(ctx); err != nil {
				logging.Warn().Err(err).Msg("scheduled recount failed")
			}
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down reels service")
	healthServer.Shutdown()
	stop()
	background.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	grpcServer.GracefulStop()
	logging.Info().Msg("reels service stopped")
}

// watchHealth mirrors record store reachability into the gRPC health service.
func watchHealth(ctx context.Context, s store.RecordStore, hs *health.Server) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		status := healthpb.HealthCheckResponse_SERVING
		if err := s.Ping(pingCtx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logging.Warn().Err(err).Msg("record store unreachable")
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(serviceName, status)
	}

	check()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// every runs fn on a ticker until ctx is done. A zero interval disables it.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
