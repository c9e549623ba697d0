package services

import (
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/store"
)

// notifier pushes server-initiated messages to connections by id. Delivery
// is best effort: a missing connection or a full outbox drops the message.
type notifier struct {
	conns  store.ConnectionStore
	logger logger.Logger
}

func (n notifier) push(connectionID string, msg any) bool {
	if connectionID == "" {
		return false
	}
	peer, ok := n.conns.Get(connectionID)
	if !ok {
		n.logger.Debug("push target gone", "connection_id", connectionID)
		return false
	}
	if !peer.Send(msg) {
		n.logger.Warn("outbox full, message dropped", "connection_id", connectionID)
		return false
	}
	return true
}
