package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/dkeye/coderoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	maxIDAttempts = 16
	missTTL       = 5 * time.Second
	maxMisses     = 4096
)

var ErrIDSpaceExhausted = errors.New("could not allocate a free room id")

// RoomRegistry is the in-memory table of live rooms. Each room is owned by
// its hub; the registry lock only guards the table itself.
type RoomRegistry struct {
	mu    sync.RWMutex
	hubs  map[domain.RoomID]*core.Hub
	store core.RoomStore
	sink  core.PersistSink
	now   func() time.Time
	newID func() domain.RoomID

	// misses remembers ids the store recently did not have, so events for
	// unknown rooms do not each cost a store read.
	missMu sync.Mutex
	misses map[domain.RoomID]time.Time
}

// NewRoomRegistry wires the registry to its durable mirror. store and sink may
// be nil, in which case rooms only live in memory.
func NewRoomRegistry(store core.RoomStore, sink core.PersistSink) *RoomRegistry {
	return &RoomRegistry{
		hubs:   make(map[domain.RoomID]*core.Hub),
		misses: make(map[domain.RoomID]time.Time),
		store:  store,
		sink:   sink,
		now:    time.Now,
		newID:  domain.NewRoomID,
	}
}

// CreateRoom allocates a room with hostName as its only participant. An empty
// language selects the default; an unknown one is rejected.
func (f *RoomRegistry) CreateRoom(ctx context.Context, hostName, language string) (domain.Room, domain.Participant, error) {
	lang := domain.DefaultLanguage
	if language != "" {
		l, err := domain.ParseLanguage(language)
		if err != nil {
			return domain.Room{}, domain.Participant{}, err
		}
		lang = l
	}
	now := f.now()
	host, err := domain.NewHost(hostName, now)
	if err != nil {
		return domain.Room{}, domain.Participant{}, err
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := f.newID()
		taken, err := f.persisted(ctx, id)
		if err != nil {
			return domain.Room{}, domain.Participant{}, err
		}
		if taken {
			continue
		}
		room := domain.NewRoom(id, lang, *host, now)
		hub := core.NewHub(room, f.sink)

		f.mu.Lock()
		if _, taken := f.hubs[id]; taken {
			f.mu.Unlock()
			continue
		}
		f.hubs[id] = hub
		f.mu.Unlock()
		f.forgetMiss(id)
		metrics.Rooms.Inc()

		snap := hub.Snapshot()
		if f.sink != nil {
			f.sink.EnqueueRoom(snap)
		}
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("language", string(lang)).Str("host", string(host.ID)).Msg("room created")
		return snap, *host, nil
	}
	return domain.Room{}, domain.Participant{}, ErrIDSpaceExhausted
}

// JoinRoom appends a new guest to the room's membership.
func (f *RoomRegistry) JoinRoom(ctx context.Context, id domain.RoomID, userName string) (domain.Room, domain.Participant, error) {
	hub, err := f.Hub(ctx, id)
	if err != nil {
		return domain.Room{}, domain.Participant{}, err
	}
	snap, guest, err := hub.AddGuest(userName, f.now())
	if err != nil {
		return domain.Room{}, domain.Participant{}, err
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("participant", string(guest.ID)).Int("members", len(snap.Participants)).Msg("participant joined")
	return snap, guest, nil
}

func (f *RoomRegistry) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	hub, err := f.Hub(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	return hub.Snapshot(), nil
}

// LeaveRoom evicts a guest from the membership. The host cannot leave.
func (f *RoomRegistry) LeaveRoom(ctx context.Context, id domain.RoomID, pid domain.ParticipantID) error {
	hub, err := f.Hub(ctx, id)
	if err != nil {
		return err
	}
	if err := hub.RemoveParticipant(pid); err != nil {
		return err
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("participant", string(pid)).Msg("participant left")
	return nil
}

// Lookup only consults memory.
func (f *RoomRegistry) Lookup(id domain.RoomID) (*core.Hub, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	hub, ok := f.hubs[id]
	return hub, ok
}

// Hub returns the live hub of a room, rebuilding it from the store when the
// room is not in memory.
func (f *RoomRegistry) Hub(ctx context.Context, id domain.RoomID) (*core.Hub, error) {
	if hub, ok := f.Lookup(id); ok {
		return hub, nil
	}
	if f.store == nil || f.recentMiss(id) {
		return nil, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	room, err := f.store.LoadRoom(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			f.rememberMiss(id)
			return nil, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load room %s: %w", id, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if hub, ok := f.hubs[id]; ok {
		return hub, nil
	}
	hub := core.NewHub(&room, f.sink)
	f.hubs[id] = hub
	metrics.Rooms.Inc()
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Int("members", len(room.Participants)).Msg("room restored from store")
	return hub, nil
}

// List reports live rooms, oldest first.
func (f *RoomRegistry) List() []core.RoomInfo {
	f.mu.RLock()
	hubs := make([]*core.Hub, 0, len(f.hubs))
	for _, h := range f.hubs {
		hubs = append(hubs, h)
	}
	f.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(hubs))
	for _, h := range hubs {
		out = append(out, h.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// persisted reports whether the store already holds id. Store failures are
// returned rather than read as a free id.
func (f *RoomRegistry) persisted(ctx context.Context, id domain.RoomID) (bool, error) {
	if f.store == nil {
		return false, nil
	}
	_, err := f.store.LoadRoom(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check room id %s: %w", id, err)
	}
}

func (f *RoomRegistry) recentMiss(id domain.RoomID) bool {
	f.missMu.Lock()
	defer f.missMu.Unlock()
	at, ok := f.misses[id]
	if !ok {
		return false
	}
	if f.now().Sub(at) > missTTL {
		delete(f.misses, id)
		return false
	}
	return true
}

func (f *RoomRegistry) rememberMiss(id domain.RoomID) {
	f.missMu.Lock()
	defer f.missMu.Unlock()
	if len(f.misses) >= maxMisses {
		clear(f.misses)
	}
	f.misses[id] = f.now()
}

func (f *RoomRegistry) forgetMiss(id domain.RoomID) {
	f.missMu.Lock()
	defer f.missMu.Unlock()
	delete(f.misses, id)
}
