package models

import "time"

// Peer is the outbound side of a live client connection.
// Send must not block: it reports false when the message was dropped.
type Peer interface {
	Send(msg any) bool
	Close() error
}

// ConnectionSession is a snapshot of a directory entry.
type ConnectionSession struct {
	ConnectionID string
	OpenedAt     time.Time
	LastSeen     time.Time
}
