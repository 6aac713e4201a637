package core

type SessionID string

// Session is one live client connection as the hub sees it.
// This is what a hub stores and fans out to.
type Session interface {
	ID() SessionID
	Signal() SignalConnection
}
