//go:generate go run go.uber.org/mock/mockgen -source=store_iface.go -destination=mocks/mock_store.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/coderoom/internal/domain"
)

// RoomStore is the durable mirror of room state. Pure load/save, no logic.
// LoadRoom returns domain.ErrNotFound when the room was never saved.
// Cursor positions are never written.
type RoomStore interface {
	SaveRoom(ctx context.Context, room domain.Room) error
	LoadRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	SaveParticipant(ctx context.Context, roomID domain.RoomID, p domain.Participant) error
	Close() error
}
