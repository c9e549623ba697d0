package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/girjesh-suryawanshi/secureshare-sub000/config"
	"github.com/girjesh-suryawanshi/secureshare-sub000/handlers"
	"github.com/girjesh-suryawanshi/secureshare-sub000/health"
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	HTTPServer   *http.Server
	GRPCServer   *grpc.Server
	HealthServer *grpchealth.Server

	Config     config.Config
	InstanceID string

	Services       *Services
	TracerProvider *trace.TracerProvider
	Logger         logger.Logger
}

func SetupApp() (*App, error) {
	cfg := config.LoadConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	instanceID := uuid.NewString()
	appLogger := logger.NewSlogLogger(logger.CreateAppLogger(cfg.Env)).With("instance", instanceID)

	app := &App{
		Config:     cfg,
		InstanceID: instanceID,
		Logger:     appLogger,
	}

	if app.Config.Tracing {
		tp, err := tracing.InitTracer(context.Background(), "secureshare-relay", cfg.TracingAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		appLogger.Info("tracing enabled", "addr", cfg.TracingAddr)

		app.TracerProvider = tp
	}

	app.Services = BuildServices(app)

	router := handlers.NewHTTPRouter(app.Services.HealthHandler, app.Services.WSHandler)
	app.HTTPServer = &http.Server{
		Addr:              cfg.ServiceConfig.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "relay-http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

// Run serves until ctx is cancelled or a listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr := a.Config.ServiceConfig.GRPCHealthAddr; addr != "" {
		a.GRPCServer = grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
		)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc health listen: %w", err)
		}
		a.createHealthServer(gctx)

		g.Go(func() error {
			a.Logger.Info("grpc health server started", "addr", addr)
			return a.GRPCServer.Serve(l)
		})
	}

	g.Go(func() error {
		a.Logger.Info("http server started", "addr", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) createHealthServer(ctx context.Context) {
	a.HealthServer = grpchealth.NewServer()

	// start pessimistic
	a.HealthServer.SetServingStatus(
		"",
		healthpb.HealthCheckResponse_NOT_SERVING,
	)
	healthpb.RegisterHealthServer(a.GRPCServer, a.HealthServer)

	checks := []health.ReadinessCheck{
		a.Services.Stores.transfers,
		a.Services.Stores.connections,
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := healthpb.HealthCheckResponse_SERVING

				for _, c := range checks {
					cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
					err := c.IsReady(cctx)
					cancel()

					if err != nil {
						a.Logger.Warn("readiness check failed", "check", c.Name(), "error", err)
						status = healthpb.HealthCheckResponse_NOT_SERVING
						break
					}
				}

				a.HealthServer.SetServingStatus("", status)
			}
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("starting graceful shutdown")

	if a.HealthServer != nil {
		a.HealthServer.Shutdown()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("http server shutdown error", "error", err)
		}
	}

	if a.GRPCServer != nil {
		done := make(chan struct{})
		go func() {
			a.GRPCServer.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			a.GRPCServer.Stop() // force
		}
	}

	// websockets are hijacked, so closing them is up to the services
	if a.Services != nil {
		if err := a.Services.Shutdown(ctx); err != nil {
			a.Logger.Error("services shutdown error", "error", err)
		}
	}

	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(ctx); err != nil {
			a.Logger.Error("tracer shutdown error", "error", err)
		}
	}

	a.Logger.Info("graceful shutdown complete")
	return nil
}
