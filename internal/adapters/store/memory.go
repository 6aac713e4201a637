// Package store holds the RoomStore backends.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/coderoom/internal/domain"
)

// Memory keeps deep copies of saved rooms in a map.
type Memory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.Room
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[domain.RoomID]domain.Room)}
}

func (m *Memory) SaveRoom(_ context.Context, room domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room.WithoutCursors()
	return nil
}

func (m *Memory) LoadRoom(_ context.Context, id domain.RoomID) (domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	return room.Clone(), nil
}

// SaveParticipant upserts p into the room's membership, keeping join order.
func (m *Memory) SaveParticipant(_ context.Context, roomID domain.RoomID, p domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	room = room.Clone()
	p = p.WithoutCursor()
	if existing, ok := room.Participant(p.ID); ok {
		*existing = p
	} else {
		room.Participants = append(room.Participants, p)
	}
	m.rooms[roomID] = room
	return nil
}

func (m *Memory) Close() error { return nil }
