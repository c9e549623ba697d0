package services

import (
	"fmt"

	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/protocol"
	"github.com/girjesh-suryawanshi/secureshare-sub000/store"
)

type SignalingService interface {
	Relay(fromID string, sig *protocol.Signal) error
}

type SignalingServiceImpl struct {
	notifier
}

func NewSignalingServiceImpl(conns store.ConnectionStore, l logger.Logger) *SignalingServiceImpl {
	return &SignalingServiceImpl{
		notifier: notifier{conns: conns, logger: l},
	}
}

// Relay forwards an opaque peer-connection payload to sig.TargetID.
func (svc *SignalingServiceImpl) Relay(fromID string, sig *protocol.Signal) error {
	peer, ok := svc.conns.Get(sig.TargetID)
	if !ok {
		return fmt.Errorf("%w: %s", cerr.ErrPeerNotFound, sig.TargetID)
	}
	if !peer.Send(protocol.NewRelayedSignal(sig.Type, fromID, sig.Data)) {
		svc.logger.Warn("signal dropped, target outbox full",
			"type", sig.Type, "from", fromID, "target", sig.TargetID)
	}
	return nil
}
