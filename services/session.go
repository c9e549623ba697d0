package services

import (
	"time"

	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/models"
	"github.com/girjesh-suryawanshi/secureshare-sub000/protocol"
	"github.com/girjesh-suryawanshi/secureshare-sub000/store"
)

type SessionService interface {
	Connect(peer models.Peer) (string, error)
	Touch(connectionID string) bool
	Disconnect(connectionID, reason string) bool
	SweepStale(now time.Time) int
	ConnectedClients() int
}

// SessionServiceImpl supervises connection lifetimes: it hands out ids,
// tracks liveness and tears down everything a connection leaves behind.
type SessionServiceImpl struct {
	conns     store.ConnectionStore
	transfers TransferService
	timeout   time.Duration

	logger logger.Logger
}

func NewSessionServiceImpl(
	conns store.ConnectionStore,
	transfers TransferService,
	livenessTimeout time.Duration,
	l logger.Logger,
) *SessionServiceImpl {
	return &SessionServiceImpl{
		conns:     conns,
		transfers: transfers,
		timeout:   livenessTimeout,
		logger:    l,
	}
}

func (svc *SessionServiceImpl) Connect(peer models.Peer) (string, error) {
	id, err := svc.conns.Open(peer)
	if err != nil {
		svc.logger.Error("failed to open session", "error", err)
		return "", err
	}
	peer.Send(protocol.NewConnectionID(id))
	svc.logger.Info("client connected", "connection_id", id, "connected_clients", svc.conns.Count())
	return id, nil
}

func (svc *SessionServiceImpl) Touch(connectionID string) bool {
	return svc.conns.Touch(connectionID)
}

// Disconnect tears a session down. Only the first call for an id does any
// work; it reports whether this call was that one.
func (svc *SessionServiceImpl) Disconnect(connectionID, reason string) bool {
	peer, ok := svc.conns.Close(connectionID)
	if !ok {
		return false
	}
	if err := peer.Close(); err != nil {
		svc.logger.Debug("peer close failed", "connection_id", connectionID, "error", err)
	}

	released := svc.transfers.ReleaseOwner(connectionID)
	svc.transfers.ForgetReceiver(connectionID)

	svc.logger.Info("client disconnected",
		"connection_id", connectionID,
		"reason", reason,
		"released", len(released),
		"connected_clients", svc.conns.Count(),
	)
	return true
}

// SweepStale closes sessions silent for longer than the liveness timeout
// and lets retired ids be issued again.
func (svc *SessionServiceImpl) SweepStale(now time.Time) int {
	closed := 0
	for _, id := range svc.conns.Stale(now, svc.timeout) {
		if svc.Disconnect(id, "liveness timeout") {
			closed++
		}
	}
	purged := svc.conns.PurgeRetired(now)
	if closed > 0 {
		svc.logger.Info("stale sessions closed", "closed", closed, "retired_purged", purged)
	}
	return closed
}

func (svc *SessionServiceImpl) ConnectedClients() int {
	return svc.conns.Count()
}
