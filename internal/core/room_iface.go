package core

import (
	"time"

	"github.com/dkeye/coderoom/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []Session
}

type RoomInfo struct {
	ID               domain.RoomID   `json:"id"`
	Language         domain.Language `json:"language"`
	ParticipantCount int             `json:"participantCount"`
	SessionCount     int             `json:"sessionCount"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// PersistSink accepts writes that must not block the broadcast path.
type PersistSink interface {
	EnqueueRoom(room domain.Room)
	EnqueueParticipant(roomID domain.RoomID, p domain.Participant)
}
