package signal

import (
	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/gin-contrib/sessions"
)

// ParticipantLookup returns the participant id a browser was issued for a
// room, or "".
type ParticipantLookup func(roomID domain.RoomID) domain.ParticipantID

// ParticipantKey is the cookie session key holding the participant id issued
// for roomID.
func ParticipantKey(roomID domain.RoomID) string {
	return "participant:" + string(roomID)
}

// Remember stores pid in the cookie session. The caller saves the session.
func Remember(s sessions.Session, roomID domain.RoomID, pid domain.ParticipantID) {
	s.Set(ParticipantKey(roomID), string(pid))
}

func rememberedParticipants(s sessions.Session) ParticipantLookup {
	return func(roomID domain.RoomID) domain.ParticipantID {
		if v, ok := s.Get(ParticipantKey(roomID)).(string); ok {
			return domain.ParticipantID(v)
		}
		return ""
	}
}

func resolveJoin(ev core.JoinRoom, remembered ParticipantLookup) core.JoinRoom {
	if ev.ParticipantID == "" && remembered != nil {
		ev.ParticipantID = remembered(ev.RoomID)
	}
	return ev
}
