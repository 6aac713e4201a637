package domain

import (
	"fmt"

	"github.com/samber/lo"
)

// Membership helpers keep Participants an ordered set.

func (r *Room) Participant(id ParticipantID) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].ID == id {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

func (r *Room) HasParticipant(id ParticipantID) bool {
	_, ok := r.Participant(id)
	return ok
}

// AddParticipant appends p unless its id is already a member.
func (r *Room) AddParticipant(p Participant) bool {
	if r.HasParticipant(p.ID) {
		return false
	}
	r.Participants = append(r.Participants, p)
	return true
}

// RemoveParticipant evicts a guest. The host can never leave its room.
func (r *Room) RemoveParticipant(id ParticipantID) error {
	if id == r.HostID {
		return fmt.Errorf("host %s cannot leave room %s: %w", id, r.ID, ErrValidation)
	}
	if !r.HasParticipant(id) {
		return fmt.Errorf("participant %s in room %s: %w", id, r.ID, ErrNotFound)
	}
	r.Participants = lo.Reject(r.Participants, func(p Participant, _ int) bool {
		return p.ID == id
	})
	return nil
}

func (r *Room) ParticipantIDs() []ParticipantID {
	return lo.Map(r.Participants, func(p Participant, _ int) ParticipantID { return p.ID })
}
