package orch

import (
	"context"

	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
)

type HubSource interface {
	Hub(ctx context.Context, id domain.RoomID) (*core.Hub, error)
}

// Relay hands externally computed execution results to a room's hub. It keeps
// no state of its own.
type Relay struct {
	rooms HubSource
}

func NewRelay(rooms HubSource) *Relay {
	return &Relay{rooms: rooms}
}

func (r *Relay) Relay(ctx context.Context, roomID domain.RoomID, result []byte, from core.SessionID) (*core.Hub, core.PublishResult, error) {
	hub, err := r.rooms.Hub(ctx, roomID)
	if err != nil {
		return nil, core.PublishResult{}, err
	}
	return hub, hub.RelayExecutionResult(result, from), nil
}
