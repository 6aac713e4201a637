package store

import (
	"sort"
	"time"

	"github.com/dkeye/coderoom/internal/domain"
)

// roomRecord is the persisted room row; participants are stored separately.
type roomRecord struct {
	ID        domain.RoomID        `json:"id"`
	Code      string               `json:"code"`
	Language  domain.Language      `json:"language"`
	CreatedAt time.Time            `json:"createdAt"`
	HostID    domain.ParticipantID `json:"hostId"`
}

func toRecord(r domain.Room) roomRecord {
	return roomRecord{ID: r.ID, Code: r.Code, Language: r.Language, CreatedAt: r.CreatedAt, HostID: r.HostID}
}

func (rec roomRecord) toRoom(participants []domain.Participant) domain.Room {
	sortByJoin(participants)
	return domain.Room{
		ID:           rec.ID,
		Code:         rec.Code,
		Language:     rec.Language,
		Participants: participants,
		CreatedAt:    rec.CreatedAt,
		HostID:       rec.HostID,
	}
}

func sortByJoin(ps []domain.Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].IsHost != ps[j].IsHost {
			return ps[i].IsHost
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
}
