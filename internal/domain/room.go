package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomID string

const roomIDLen = 8

// NewRoomID draws a short id; the registry re-draws on collision.
func NewRoomID() RoomID {
	return RoomID(uuid.NewString()[:roomIDLen])
}

type Room struct {
	ID           RoomID        `json:"id"`
	Code         string        `json:"code"`
	Language     Language      `json:"language"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
	HostID       ParticipantID `json:"hostId"`
}

// NewRoom builds a room whose only member is host.
func NewRoom(id RoomID, lang Language, host Participant, at time.Time) *Room {
	return &Room{
		ID:           id,
		Code:         lang.Template(),
		Language:     lang,
		Participants: []Participant{host},
		CreatedAt:    at,
		HostID:       host.ID,
	}
}

// Clone is a deep copy safe to hand out of the owning hub.
func (r *Room) Clone() Room {
	out := *r
	out.Participants = make([]Participant, len(r.Participants))
	for i, p := range r.Participants {
		out.Participants[i] = p.Clone()
	}
	return out
}

// WithoutCursors is the shape stores persist.
func (r *Room) WithoutCursors() Room {
	out := r.Clone()
	for i := range out.Participants {
		out.Participants[i].Cursor = nil
	}
	return out
}

func (r *Room) GuestCount() int {
	n := 0
	for _, p := range r.Participants {
		if !p.IsHost {
			n++
		}
	}
	return n
}
