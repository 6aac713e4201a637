package core

import (
	"sync"
	"time"

	"github.com/dkeye/coderoom/internal/domain"
	"github.com/dkeye/coderoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Hub is the single writer of one room's state and its fan-out point.
//
// Lock order is mu -> cursorMu -> sessMu. mu serializes code, language and
// membership changes together with their broadcast, so observers receive
// mutations in the order they were applied. Cursor and execution relays never
// take mu.
type Hub struct {
	id      domain.RoomID
	persist PersistSink

	mu   sync.Mutex
	room *domain.Room

	cursorMu sync.Mutex
	members  map[domain.ParticipantID]struct{}
	cursors  map[domain.ParticipantID]domain.CursorPosition

	sessMu   sync.RWMutex
	order    []SessionID
	sessions map[SessionID]Session
}

// NewHub takes ownership of room. persist may be nil.
func NewHub(room *domain.Room, persist PersistSink) *Hub {
	h := &Hub{
		id:       room.ID,
		persist:  persist,
		room:     room,
		members:  make(map[domain.ParticipantID]struct{}, len(room.Participants)),
		cursors:  make(map[domain.ParticipantID]domain.CursorPosition),
		sessions: make(map[SessionID]Session),
	}
	for _, p := range room.Participants {
		h.members[p.ID] = struct{}{}
		if p.Cursor != nil {
			h.cursors[p.ID] = *p.Cursor
		}
	}
	for i := range room.Participants {
		room.Participants[i].Cursor = nil
	}
	return h
}

func (h *Hub) ID() domain.RoomID { return h.id }

// Attach registers s for fan-out. Attaching the same session id twice keeps
// its original position.
func (h *Hub) Attach(s Session) {
	h.sessMu.Lock()
	defer h.sessMu.Unlock()
	if _, ok := h.sessions[s.ID()]; ok {
		h.sessions[s.ID()] = s
		return
	}
	h.sessions[s.ID()] = s
	h.order = append(h.order, s.ID())
	metrics.AttachedSessions.Inc()
	log.Info().Str("module", "core.hub").Str("room", string(h.id)).Str("sid", string(s.ID())).Msg("session attached")
}

// Detach is a no-op for sessions that are not attached.
func (h *Hub) Detach(sid SessionID) {
	h.sessMu.Lock()
	defer h.sessMu.Unlock()
	if _, ok := h.sessions[sid]; !ok {
		return
	}
	delete(h.sessions, sid)
	for i, id := range h.order {
		if id == sid {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	metrics.AttachedSessions.Dec()
	log.Info().Str("module", "core.hub").Str("room", string(h.id)).Str("sid", string(sid)).Msg("session detached")
}

func (h *Hub) SessionCount() int {
	h.sessMu.RLock()
	defer h.sessMu.RUnlock()
	return len(h.sessions)
}

// ApplyCodeUpdate replaces the buffer. Last writer wins, there is no merge.
func (h *Hub) ApplyCodeUpdate(code string, from SessionID) PublishResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.room.Code = code
	h.persistRoomLocked()
	return h.broadcast(from, CodeUpdate{RoomID: h.id, Code: code})
}

// ApplyLanguageUpdate fails closed on unsupported languages: nothing is
// applied or broadcast.
func (h *Hub) ApplyLanguageUpdate(lang domain.Language, from SessionID) (PublishResult, error) {
	l, err := domain.ParseLanguage(string(lang))
	if err != nil {
		return PublishResult{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.room.Language = l
	h.persistRoomLocked()
	return h.broadcast(from, LanguageUpdate{RoomID: h.id, Language: l}), nil
}

// RelayCursorUpdate records the cursor of a known member and forwards the
// update either way. Cursors are never persisted.
func (h *Hub) RelayCursorUpdate(pid domain.ParticipantID, pos domain.CursorPosition, from SessionID) PublishResult {
	h.cursorMu.Lock()
	if _, ok := h.members[pid]; ok {
		h.cursors[pid] = pos
	}
	h.cursorMu.Unlock()
	return h.broadcast(from, CursorUpdate{
		RoomID:        h.id,
		ParticipantID: pid,
		LineNumber:    pos.LineNumber,
		Column:        pos.Column,
	})
}

// RelayExecutionResult is a pure relay; room state is untouched.
func (h *Hub) RelayExecutionResult(result []byte, from SessionID) PublishResult {
	return h.broadcast(from, ExecutionResult{RoomID: h.id, Result: result})
}

// AddParticipant appends p to the membership and persists it.
func (h *Hub) AddParticipant(p domain.Participant) (domain.Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.addLocked(p) {
		return h.snapshotLocked(), false
	}
	return h.snapshotLocked(), true
}

// AddGuest builds a guest and appends it in one step, so the palette slot is
// picked against the membership it joins.
func (h *Hub) AddGuest(name string, at time.Time) (domain.Room, domain.Participant, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	guest, err := domain.NewGuest(name, h.room.GuestCount(), at)
	if err != nil {
		return domain.Room{}, domain.Participant{}, err
	}
	h.addLocked(*guest)
	return h.snapshotLocked(), *guest, nil
}

func (h *Hub) addLocked(p domain.Participant) bool {
	p.Cursor = nil
	if !h.room.AddParticipant(p) {
		return false
	}
	h.cursorMu.Lock()
	h.members[p.ID] = struct{}{}
	h.cursorMu.Unlock()
	if h.persist != nil {
		h.persist.EnqueueParticipant(h.id, p)
	}
	h.persistRoomLocked()
	return true
}

func (h *Hub) RemoveParticipant(pid domain.ParticipantID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.room.RemoveParticipant(pid); err != nil {
		return err
	}
	h.cursorMu.Lock()
	delete(h.members, pid)
	delete(h.cursors, pid)
	h.cursorMu.Unlock()
	h.persistRoomLocked()
	return nil
}

// Snapshot returns a deep copy including current cursor positions.
func (h *Hub) Snapshot() domain.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Hub) Info() RoomInfo {
	h.mu.Lock()
	info := RoomInfo{
		ID:               h.id,
		Language:         h.room.Language,
		ParticipantCount: len(h.room.Participants),
		CreatedAt:        h.room.CreatedAt,
	}
	h.mu.Unlock()
	info.SessionCount = h.SessionCount()
	return info
}

func (h *Hub) snapshotLocked() domain.Room {
	out := h.room.Clone()
	h.cursorMu.Lock()
	defer h.cursorMu.Unlock()
	for i := range out.Participants {
		if pos, ok := h.cursors[out.Participants[i].ID]; ok {
			out.Participants[i].Cursor = &pos
		}
	}
	return out
}

func (h *Hub) persistRoomLocked() {
	if h.persist == nil {
		return
	}
	h.persist.EnqueueRoom(h.room.WithoutCursors())
}

// broadcast delivers e to every attached session except from, in attach
// order. A failed delivery never stops the rest of the fan-out.
func (h *Hub) broadcast(from SessionID, e Event) PublishResult {
	res := PublishResult{}
	frame, err := Encode(e)
	if err != nil {
		log.Error().Err(err).Str("module", "core.hub").Str("room", string(h.id)).Msg("encode event")
		return res
	}

	h.sessMu.RLock()
	defer h.sessMu.RUnlock()
	for _, sid := range h.order {
		if sid == from {
			continue
		}
		s := h.sessions[sid]
		if err := s.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, s)
			metrics.DroppedDeliveries.WithLabelValues(string(e.Type())).Inc()
			continue
		}
		res.SentTo++
	}
	metrics.Broadcasts.WithLabelValues(string(e.Type())).Inc()
	log.Debug().Str("module", "core.hub").Str("room", string(h.id)).Str("event", string(e.Type())).Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
