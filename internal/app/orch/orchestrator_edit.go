package orch

import (
	"context"

	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
)

func (o *Orchestrator) OnCodeUpdate(ctx context.Context, sid core.SessionID, ev core.CodeUpdate) error {
	hub, err := o.Rooms.Hub(ctx, ev.RoomID)
	if err != nil {
		return err
	}
	o.afterPublish(hub, hub.ApplyCodeUpdate(ev.Code, sid))
	return nil
}

func (o *Orchestrator) OnLanguageUpdate(ctx context.Context, sid core.SessionID, ev core.LanguageUpdate) error {
	hub, err := o.Rooms.Hub(ctx, ev.RoomID)
	if err != nil {
		return err
	}
	res, err := hub.ApplyLanguageUpdate(ev.Language, sid)
	if err != nil {
		return err
	}
	o.afterPublish(hub, res)
	return nil
}

// OnCursorUpdate falls back to the sender's bound participant when the event
// does not name one.
func (o *Orchestrator) OnCursorUpdate(ctx context.Context, sid core.SessionID, ev core.CursorUpdate) error {
	hub, err := o.Rooms.Hub(ctx, ev.RoomID)
	if err != nil {
		return err
	}
	pid := ev.ParticipantID
	if pid == "" {
		if roomID, bound, ok := o.Sessions.BindingOf(sid); ok && roomID == ev.RoomID {
			pid = bound
		}
	}
	pos := domain.CursorPosition{LineNumber: ev.LineNumber, Column: ev.Column}
	o.afterPublish(hub, hub.RelayCursorUpdate(pid, pos, sid))
	return nil
}

// RelayExecution forwards an execution result to the room. An empty from
// delivers it to every attached session.
func (o *Orchestrator) RelayExecution(ctx context.Context, roomID domain.RoomID, result []byte, from core.SessionID) (core.PublishResult, error) {
	hub, res, err := o.Relay.Relay(ctx, roomID, result, from)
	if err != nil {
		return res, err
	}
	o.afterPublish(hub, res)
	return res, nil
}
