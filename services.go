package main

import (
	"context"
	"time"

	"github.com/girjesh-suryawanshi/secureshare-sub000/handlers"
	"github.com/girjesh-suryawanshi/secureshare-sub000/health"
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/services"
	"github.com/girjesh-suryawanshi/secureshare-sub000/store"
	"github.com/girjesh-suryawanshi/secureshare-sub000/sweepers"
)

type Stores struct {
	transfers   store.TransferStore
	connections store.ConnectionStore
}

type Services struct {
	Transfers services.TransferService
	Sessions  services.SessionService
	Signaling services.SignalingService
	Sweepers  []sweepers.Sweeper

	Stores *Stores

	WSHandler     *handlers.WSHandler
	HealthHandler *handlers.HealthHandler

	// cancels every client outbox and sweeper
	cancel context.CancelFunc
	logger logger.Logger
}

func BuildServices(app *App) *Services {
	ctx, cancel := context.WithCancel(context.Background())
	transferCfg := app.Config.TransferConfig
	sessionCfg := app.Config.SessionConfig

	transferStore := store.NewMemoryTransferStore(transferCfg.TTL,
		store.WithCodeAttempts(transferCfg.CodeAttempts),
		store.WithMaxBatchBytes(transferCfg.MaxBatchBytes),
		store.WithTombstoneTTL(transferCfg.TombstoneTTL),
	)
	connStore := store.NewMemoryConnectionStore(
		store.WithRetirement(transferCfg.TombstoneTTL),
	)

	transferSvc := services.NewTransferServiceImpl(
		transferStore,
		connStore,
		services.NewDelivery(time.Now),
		transferCfg.TombstoneTTL,
		app.Logger.With("component", "transfers"),
	)
	sessionSvc := services.NewSessionServiceImpl(
		connStore,
		transferSvc,
		sessionCfg.LivenessTimeout,
		app.Logger.With("component", "sessions"),
	)
	signalingSvc := services.NewSignalingServiceImpl(connStore, app.Logger.With("component", "signaling"))

	expiry := sweepers.NewSweeperImpl(ctx, "transfer-expiry", transferCfg.ExpirySweepInterval, transferSvc.SweepExpired, app.Logger)
	liveness := sweepers.NewSweeperImpl(ctx, "session-liveness", sessionCfg.LivenessSweepInterval, sessionSvc.SweepStale, app.Logger)
	expiry.Start()
	liveness.Start()

	router := handlers.NewMessageRouter(transferSvc, sessionSvc, signalingSvc, app.Logger.With("component", "router"))
	wsHandler := handlers.NewWSHandler(ctx, router, sessionSvc, *sessionCfg, app.Config.ServiceConfig.AllowedOrigins, app.Logger)
	healthHandler := handlers.NewHealthHandler(
		transferSvc,
		sessionSvc,
		[]health.ReadinessCheck{transferStore, connStore},
		app.InstanceID,
		app.Logger,
	)

	return &Services{
		Transfers: transferSvc,
		Sessions:  sessionSvc,
		Signaling: signalingSvc,
		Sweepers:  []sweepers.Sweeper{expiry, liveness},

		Stores: &Stores{
			transfers:   transferStore,
			connections: connStore,
		},

		WSHandler:     wsHandler,
		HealthHandler: healthHandler,

		cancel: cancel,
		logger: app.Logger,
	}
}

func (s *Services) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down services")

	for _, sw := range s.Sweepers {
		if err := sw.Shutdown(ctx); err != nil {
			s.logger.Error("sweeper shutdown error", "error", err)
		}
	}

	// closes every client socket; their read loops then disconnect the sessions
	if s.cancel != nil {
		s.cancel()
	}

	s.logger.Info("services shutdown complete")
	return nil
}
