package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join binds the session to a room and attaches it to the room's hub. The
// joiner gets a snapshot so it can sync its buffer.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, ev core.JoinRoom) error {
	hub, err := o.Rooms.Hub(ctx, ev.RoomID)
	if err != nil {
		return err
	}
	if ev.ParticipantID != "" {
		snap := hub.Snapshot()
		if !snap.HasParticipant(ev.ParticipantID) {
			return fmt.Errorf("participant %s in room %s: %w", ev.ParticipantID, ev.RoomID, domain.ErrNotFound)
		}
	}
	sess, ok := o.Sessions.Get(sid)
	if !ok {
		return fmt.Errorf("session %s: %w", sid, domain.ErrNotFound)
	}
	if err := o.Sessions.Bind(sid, ev.RoomID, ev.ParticipantID); err != nil {
		return err
	}
	hub.Attach(sess)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(ev.RoomID)).Str("participant", string(ev.ParticipantID)).Msg("joined room")

	o.reply(sid, core.Joined{
		RoomID:        ev.RoomID,
		ParticipantID: ev.ParticipantID,
		Room:          hub.Snapshot(),
	})
	return nil
}

// OnDisconnect detaches the session. Room membership is kept.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	roomID, bound := o.Sessions.Unregister(sid)
	if !bound {
		return
	}
	if hub, ok := o.Rooms.Lookup(roomID); ok {
		hub.Detach(sid)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("disconnected")
}

// KickBySID detaches the session right away and stops its connection.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	if roomID, _, ok := o.Sessions.BindingOf(sid); ok {
		if hub, ok := o.Rooms.Lookup(roomID); ok {
			hub.Detach(sid)
		}
	}
	o.Sessions.Cancel(sid)
}
