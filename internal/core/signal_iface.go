package core

import "errors"

// Frame is one encoded outbound event.
type Frame []byte

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: it either queues f or reports why it could not.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
