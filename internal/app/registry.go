package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyBound = errors.New("session already joined a room")

type sessionEntry struct {
	RoomID        domain.RoomID
	ParticipantID domain.ParticipantID
	Session       core.Session
	Cancel        context.CancelFunc
}

// Sessions tracks live connections and the room binding each one gets from
// its join signal.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[core.SessionID]*sessionEntry)}
}

// Register records a freshly connected, unbound session.
func (r *Sessions) Register(sess core.Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.sessions").Str("sid", string(sess.ID())).Msg("registered session")
}

func (r *Sessions) Get(sid core.SessionID) (core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Bind sets the (room, participant) pair of a session. It happens once.
func (r *Sessions) Bind(sid core.SessionID, roomID domain.RoomID, pid domain.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return fmt.Errorf("session %s: %w", sid, domain.ErrNotFound)
	}
	if e.RoomID != "" {
		return ErrAlreadyBound
	}
	e.RoomID = roomID
	e.ParticipantID = pid
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("room", string(roomID)).Str("participant", string(pid)).Msg("bound session")
	return nil
}

func (r *Sessions) BindingOf(sid core.SessionID) (domain.RoomID, domain.ParticipantID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.RoomID == "" {
		return "", "", false
	}
	return e.RoomID, e.ParticipantID, true
}

// Unregister drops the session and returns the room it was bound to, if any.
func (r *Sessions) Unregister(sid core.SessionID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("unregistered session")
	return e.RoomID, e.RoomID != ""
}

type regSnap struct {
	SID           core.SessionID
	ParticipantID domain.ParticipantID
	Session       core.Session
}

func (r *Sessions) MembersOfRoom(id domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0)
	for sid, e := range r.sessions {
		if e.RoomID == id {
			out = append(out, regSnap{SID: sid, ParticipantID: e.ParticipantID, Session: e.Session})
		}
	}
	return out
}

func (r *Sessions) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel stops the connection goroutines of a session.
func (r *Sessions) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("canceled session")
	return true
}
